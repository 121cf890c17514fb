package main

import (
	"os"

	"tarediiran-industries.com/transit-map/internal/common"
	"tarediiran-industries.com/transit-map/internal/web/transit_web"
)

func main() {
	code := transit_web.Main(os.Args[0], os.Args[1:], os.Stdout, os.Stderr)
	common.FlushLogs()
	os.Exit(code)
}
