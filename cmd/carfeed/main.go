package main

import (
	"fmt"
	"os"

	"github.com/nhle/carfeed/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "carfeed:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
