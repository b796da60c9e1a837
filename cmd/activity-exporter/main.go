package main

import (
	_ "time/tzdata"

	"github.com/coder/activity-exporter/cli"
)

func main() {
	var rootCmd cli.RootCmd
	rootCmd.RunMain()
}
