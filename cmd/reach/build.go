package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// newBuildCmd returns `reach build`: loads descriptors, runs a build, and
// reports the BuildID and pod count. It exists mainly to validate
// a descriptor set and config before committing to a query.
func newBuildCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build a reachability model from descriptors and report its BuildID",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildProgram(cmd.Context(), v)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "build %s: %d pods\n", p.BuildID, p.PodCount())
			return nil
		},
	}
}
