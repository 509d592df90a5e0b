package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/intercall/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "intercall:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
