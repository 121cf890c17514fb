package common

import (
	"flag"
	"strconv"

	"github.com/golang/glog"
)

// InitLogging sends glog output to stderr unless a log directory was
// configured. glog registers its flags on flag.CommandLine, which our
// binaries never parse, so the defaults are applied here.
func InitLogging(verbosity int) {
	if f := flag.CommandLine.Lookup("log_dir"); f != nil && f.Value.String() != "" {
		return
	}
	_ = flag.CommandLine.Set("logtostderr", "true")
	if verbosity > 0 {
		_ = flag.CommandLine.Set("v", strconv.Itoa(verbosity))
	}
}

func FlushLogs() {
	glog.Flush()
}
