package main

import (
	"fmt"
	"os"

	"github.com/kubilitics/kubeluma/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kubeluma:", err)
		os.Exit(cli.ExitCode(err))
	}
}
