// Command progrev is the NC program revision and workflow engine CLI.
package main

import (
	"fmt"
	"os"

	"github.com/dshills/progrev/pkg/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
