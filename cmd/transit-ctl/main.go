package main

import (
	"os"

	"tarediiran-industries.com/transit-map/internal/cmd"
	"tarediiran-industries.com/transit-map/internal/common"
)

func main() {
	err := cmd.Execute()
	common.FlushLogs()
	if err != nil {
		os.Exit(1)
	}
}
