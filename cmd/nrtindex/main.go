// Package main provides the entry point for the nrtindex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/nrtindex/cmd/nrtindex/cmd"
	nrterrors "github.com/Aman-CERP/nrtindex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, nrterrors.FormatForCLI(err))
		os.Exit(1)
	}
}
