package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Azure/netreach/pkg/httpapi"
)

const flagAddress = "address"

// newServeCmd returns `reach serve`: builds a Program once from the bound
// descriptors/config and serves the six query-surface methods over HTTP,
// the mux-routed replacement for the dropped grpc/protobuf query surface.
func newServeCmd(v *viper.Viper) *cobra.Command {
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the six reachability queries over a mux-routed debug HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildProgram(cmd.Context(), v)
			if err != nil {
				return err
			}
			addr, err := cmd.Flags().GetString(flagAddress)
			if err != nil {
				return err
			}
			return httpapi.New(addr, p).ListenAndServe()
		},
	}
	serve.Flags().String(flagAddress, "0.0.0.0:10091", "address to listen on")
	return serve
}
