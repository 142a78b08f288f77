package main

import (
	"os"

	"github.com/bryanwahyu/trapscan/internal/cli"
	"github.com/bryanwahyu/trapscan/internal/config"
)

var version = "dev"

func main() {
	config.LoadDotEnv()
	// go-flags already printed the error
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
