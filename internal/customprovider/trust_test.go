package customprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sanix-darker/librarium/internal/config"
)

func TestTrusted_NilConfigTrustsNothing(t *testing.T) {
	assert.False(t, Trusted(nil, "my-script"))
}

func TestTrusted_EmptySetTrustsNothing(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.False(t, Trusted(&cfg, "my-script"))
}

func TestTrusted_AllowsListedID(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.TrustedProviderIDs["my-script"] = struct{}{}
	assert.True(t, Trusted(&cfg, "my-script"))
	assert.False(t, Trusted(&cfg, "other-script"))
}
