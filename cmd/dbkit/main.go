// Command dbkit inspects database schemas and renders SQL conditions.
package main

import (
	"fmt"
	"os"

	"github.com/koustreak/dbkit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
