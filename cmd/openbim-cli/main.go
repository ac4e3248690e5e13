// Package main provides the openBIM command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/louistrue/openBIM-service/cmd/openbim-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
