package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sanix-darker/librarium/internal/provider"
)

func TestArgsToQuery_JoinsWithSingleSpaces(t *testing.T) {
	assert.Equal(t, "what is rust", argsToQuery([]string{"what", "is", "rust"}))
	assert.Equal(t, "solo", argsToQuery([]string{"solo"}))
}

func TestCapabilitiesString_ListsEnabledCapabilities(t *testing.T) {
	assert.Equal(t, "execute", capabilitiesString(provider.Capabilities{}))
	assert.Equal(t, "submit,poll,retrieve", capabilitiesString(provider.Capabilities{Submit: true, Poll: true, Retrieve: true}))
}
