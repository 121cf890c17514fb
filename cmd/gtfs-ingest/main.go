package main

import (
	"os"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/ingest/gtfs_static"
)

func main() {
	code := gtfs_static.Main(os.Args[0], os.Args[1:], os.Stdout, os.Stderr)
	common.FlushLogs()
	os.Exit(code)
}
