package main

import (
	"os"

	"github.com/logspam/logspam/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
