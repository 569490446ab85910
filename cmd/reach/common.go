package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Azure/netreach/pkg/config"
	"github.com/Azure/netreach/pkg/program"
)

// buildProgram loads descriptors per the bound --descriptors/--kubeconfig
// flags and runs program.Build with the bound toggles.
func buildProgram(ctx context.Context, v *viper.Viper) (*program.Program, error) {
	kubeconfig := v.GetString(flagKubeconfig)
	descriptors := v.GetString(flagDescriptors)

	if kubeconfig != "" {
		nses, pods, policies, err := loadFromCluster(ctx, kubeconfig)
		if err != nil {
			return nil, err
		}
		return program.Build(ctx, pods, nses, policies, config.Load(v))
	}
	if descriptors == "" {
		return nil, fmt.Errorf("one of --%s or --%s is required", flagDescriptors, flagKubeconfig)
	}
	nses, pods, policies, err := loadFromFile(descriptors)
	if err != nil {
		return nil, err
	}
	return program.Build(ctx, pods, nses, policies, config.Load(v))
}
