package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Azure/netreach/pkg/program"
)

const (
	flagLabel = "label"
	flagPod   = "pod"
)

// newQueryCmd returns `reach query <kind>`, one subcommand per query-
// surface method spec.md §6 names on *program.Program.
func newQueryCmd(v *viper.Viper) *cobra.Command {
	query := &cobra.Command{
		Use:   "query",
		Short: "Run one of the six reachability queries against a freshly built model",
	}

	query.AddCommand(newQueryLeafCmd(v, "edges", "All (src,dst) have-path pairs", func(cmd *cobra.Command, p *program.Program) error {
		pairs, err := p.AllEdges(cmd.Context())
		if err != nil {
			return err
		}
		printPairs(cmd, pairs)
		return nil
	}))

	query.AddCommand(newQueryLeafCmd(v, "reach-isolate", "Pods reachable from every other pod, and pods reached by no other pod", func(cmd *cobra.Command, p *program.Program) error {
		reachable, isolated, err := p.AllReachIsolate(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reachable: %v\nisolated: %v\n", reachable, isolated)
		return nil
	}))

	crosscheck := newQueryLeafCmd(v, "crosscheck", "Pods with an in-edge from a pod carrying a different value of --label", func(cmd *cobra.Command, p *program.Program) error {
		label, err := cmd.Flags().GetString(flagLabel)
		if err != nil {
			return err
		}
		if label == "" {
			return fmt.Errorf("--%s is required", flagLabel)
		}
		violating, err := p.UserCrosscheck(cmd.Context(), label)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), violating)
		return nil
	})
	crosscheck.Flags().String(flagLabel, "", "label key to crosscheck")
	query.AddCommand(crosscheck)

	systemIsolation := newQueryLeafCmd(v, "system-isolation", "Pods with no egress edge to --pod", func(cmd *cobra.Command, p *program.Program) error {
		podIdx, err := cmd.Flags().GetInt(flagPod)
		if err != nil {
			return err
		}
		isolated, err := p.SystemIsolation(cmd.Context(), podIdx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), isolated)
		return nil
	})
	systemIsolation.Flags().Int(flagPod, 0, "pod index to check isolation against")
	query.AddCommand(systemIsolation)

	query.AddCommand(newQueryLeafCmd(v, "shadow", "Policy pairs (q0,q1) where q0's effects are contained in q1's", func(cmd *cobra.Command, p *program.Program) error {
		pairs, err := p.PolicyShadow(cmd.Context())
		if err != nil {
			return err
		}
		printPairs(cmd, pairs)
		return nil
	}))

	query.AddCommand(newQueryLeafCmd(v, "conflict", "Policy pairs (q0,q1) that never jointly affect any pod", func(cmd *cobra.Command, p *program.Program) error {
		pairs, err := p.PolicyConflict(cmd.Context())
		if err != nil {
			return err
		}
		printPairs(cmd, pairs)
		return nil
	}))

	return query
}

func newQueryLeafCmd(v *viper.Viper, use, short string, run func(*cobra.Command, *program.Program) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildProgram(cmd.Context(), v)
			if err != nil {
				return err
			}
			return run(cmd, p)
		},
	}
}

func printPairs(cmd *cobra.Command, pairs [][2]int) {
	for _, pair := range pairs {
		fmt.Fprintf(cmd.OutOrStdout(), "(%d,%d)\n", pair[0], pair[1])
	}
}
