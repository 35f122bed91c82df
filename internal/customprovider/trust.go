package customprovider

import "github.com/sanix-darker/librarium/internal/config"

// Trusted reports whether a custom-provider id passes the trust gate: an
// entry loads only if its id is present in cfg.TrustedProviderIDs. An
// empty trust set trusts nothing.
func Trusted(cfg *config.Config, id string) bool {
	if cfg == nil {
		return false
	}
	_, ok := cfg.TrustedProviderIDs[id]
	return ok
}
