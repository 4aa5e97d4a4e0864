package main

import (
	"context"
	"fmt"
	"os"

	"leadgen/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "leadgenctl:", err)
		os.Exit(1)
	}
}
