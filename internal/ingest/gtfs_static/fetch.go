package gtfs_static

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	resty "gopkg.in/resty.v1"
)

// UnzipToTempDir extracts the known GTFS files of a feed archive. Files in
// a nested folder are matched by base name; anything else is skipped.
func UnzipToTempDir(zipPath string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	dir, err := os.MkdirTemp("", "gtfs-ingest-*")
	if err != nil {
		return "", err
	}

	known := map[string]bool{}
	for _, entry := range FileTableMapping {
		known[entry.FileName] = true
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := path.Base(file.Name)
		if !known[name] {
			glog.V(1).Infof("skipping unrecognized file %s", file.Name)
			continue
		}

		written, err := extractFile(file, filepath.Join(dir, name))
		if err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("extract %s: %w", file.Name, err)
		}
		glog.V(1).Infof("extracted %s (%d bytes)", file.Name, written)
	}

	glog.Infof("extracted %s -> %s", zipPath, dir)
	return dir, nil
}

func extractFile(file *zip.File, dstPath string) (int64, error) {
	src, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return written, err
}

// DownloadToTempFile saves the feed at url to a temporary zip file.
func DownloadToTempFile(ctx context.Context, url string) (string, error) {
	tmpFile, err := os.CreateTemp("", "gtfs-ingest-*.zip")
	if err != nil {
		return "", err
	}
	tmpFile.Close()

	client := resty.New().SetTimeout(5 * time.Minute)
	response, err := client.R().SetContext(ctx).SetOutput(tmpFile.Name()).Get(url)
	if err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}

	if response.StatusCode() != http.StatusOK {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("download %s: HTTP %d", url, response.StatusCode())
	}

	glog.Infof("downloaded %s -> %s (%d bytes)", url, tmpFile.Name(), response.Size())
	return tmpFile.Name(), nil
}
