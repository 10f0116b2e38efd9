// Package main provides the entry point for the iiifstore CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/iiifstore/cmd/iiifstore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
