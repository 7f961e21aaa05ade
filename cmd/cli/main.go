package main

import (
	"os"

	"github.com/hds-conecte/conecte/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
