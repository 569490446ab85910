// Package config holds the build-time Toggles spec.md §4.F/§9 requires
// every build to pass explicitly, and a viper-backed Load for reading
// them from the CLI's config file/environment/flags, grounded directly
// on npm/config/config.go's Toggles/DefaultConfig shape.
package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Toggles are the three build-time behaviors spec.md §4.F/§9 names.
// spec.md §9's Open Questions flags the source's inconsistent defaulting
// of these; here they are mandatory fields of a value every
// program.Build call must receive explicitly — there is no implicit
// fallback baked into the reachability rules themselves.
type Toggles struct {
	// SelfIngress enables the ingress_traffic(sel,sel) seed.
	SelfIngress bool

	// SelectByNoPolicy enables the "selected by no policy accepts/emits
	// all traffic" rule pair.
	SelectByNoPolicy bool

	// GroundDefaultPod replaces the negated selected_by_any reference in
	// the SelectByNoPolicy rules with ground facts enumerated from the
	// pod list, avoiding engine weaknesses with open negation.
	GroundDefaultPod bool
}

// DefaultToggles is a named, documented starting point — self-ingress
// on, select-by-no-policy on, ground-default-pod on — never an implicit
// default any query path assumes on its own.
var DefaultToggles = Toggles{
	SelfIngress:      true,
	SelectByNoPolicy: true,
	GroundDefaultPod: true,
}

const (
	keySelfIngress      = "toggles.self_ingress"
	keySelectByNoPolicy = "toggles.select_by_no_policy"
	keyGroundDefaultPod = "toggles.ground_default_pod"
)

// BindFlags registers the Toggles fields onto a flag set, matching the
// teacher's habit (npm/config.Config) of layering flags over a viper
// instance so the CLI and a config file agree on precedence.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("self-ingress", DefaultToggles.SelfIngress, "enable the self-ingress seed rule")
	flags.Bool("select-by-no-policy", DefaultToggles.SelectByNoPolicy, "treat pods selected by no policy as allow-all")
	flags.Bool("ground-default-pod", DefaultToggles.GroundDefaultPod, "ground select-by-no-policy instead of negating selected_by_any")

	_ = v.BindPFlag(keySelfIngress, flags.Lookup("self-ingress"))
	_ = v.BindPFlag(keySelectByNoPolicy, flags.Lookup("select-by-no-policy"))
	_ = v.BindPFlag(keyGroundDefaultPod, flags.Lookup("ground-default-pod"))
}

// Load reads Toggles from v, falling back to DefaultToggles for any key
// that was never bound or set.
func Load(v *viper.Viper) Toggles {
	t := DefaultToggles
	if v.IsSet(keySelfIngress) {
		t.SelfIngress = v.GetBool(keySelfIngress)
	}
	if v.IsSet(keySelectByNoPolicy) {
		t.SelectByNoPolicy = v.GetBool(keySelectByNoPolicy)
	}
	if v.IsSet(keyGroundDefaultPod) {
		t.GroundDefaultPod = v.GetBool(keyGroundDefaultPod)
	}
	return t
}
