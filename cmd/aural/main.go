package main

import (
	"os"

	"aural.click/internal/cli"
)

func main() {
	os.Exit(cli.NewCLI().Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}
