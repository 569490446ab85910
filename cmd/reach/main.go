package main

import (
	"context"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	cobra.CheckErr(root.ExecuteContext(context.Background()))
}
