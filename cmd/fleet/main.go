// Package main provides the entry point for the fleet CLI.
package main

import (
	"os"

	"yqhp/worker-fleet/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
