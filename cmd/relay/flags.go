package main

import "github.com/spf13/pflag"

// flagAliases accepts the long spellings --token, --owner and --verbosity.
func flagAliases(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "token":
		name = "api-token"
	case "owner":
		name = "owner-id"
	case "verbosity":
		name = "verbose"
	}
	return pflag.NormalizedName(name)
}
