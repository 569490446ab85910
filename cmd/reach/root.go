package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/Azure/netreach/pkg/buildmetrics"
	"github.com/Azure/netreach/pkg/config"
)

const (
	flagDescriptors = "descriptors"
	flagKubeconfig  = "kubeconfig"
	flagMetrics     = "metrics"
)

// newRootCmd returns the reach root cobra command, grounded on
// npm/cmd/root.go's viper-config-then-subcommands shape.
func newRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "reach",
		Short: "Build and query a NetworkPolicy reachability model",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool(flagMetrics) {
				buildmetrics.InitializeAll()
			}
		},
	}

	root.PersistentFlags().String(flagDescriptors, "", "path to a JSON/YAML descriptor snapshot")
	root.PersistentFlags().String(flagKubeconfig, "", "path to a kubeconfig; if set, descriptors are read from the live cluster instead of --descriptors")
	root.PersistentFlags().Bool(flagMetrics, false, "initialize Prometheus build/query metrics")
	config.BindFlags(root.PersistentFlags(), v)
	if err := v.BindPFlags(root.PersistentFlags()); err != nil {
		klog.Fatalf("reach: binding persistent flags: %v", err)
	}

	root.AddCommand(newBuildCmd(v))
	root.AddCommand(newQueryCmd(v))
	root.AddCommand(newServeCmd(v))
	return root
}
