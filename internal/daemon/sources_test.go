package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/heytcass/jasper/internal/config"
)

func TestBuildSourcesSkipsDisabledAndUnknownKinds(t *testing.T) {
	sources := BuildSources(map[string]config.ContextSourceConfig{
		"demo-a":  {Kind: "demo", Enabled: true},
		"demo-b":  {Kind: "demo", Enabled: false},
		"unknown": {Kind: "calendar", Enabled: true},
	})
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"demo-a"}, ids)
}

func TestSourceTimeoutsCarriesEachSourcesOwnValueIndependently(t *testing.T) {
	timeouts := SourceTimeouts(map[string]config.ContextSourceConfig{
		"fast":     {Kind: "demo", Enabled: true, TimeoutSeconds: 2},
		"slow":     {Kind: "demo", Enabled: true, TimeoutSeconds: 30},
		"disabled": {Kind: "demo", Enabled: false, TimeoutSeconds: 60},
		"unset":    {Kind: "demo", Enabled: true},
	})

	assert.Equal(t, 2*time.Second, timeouts["fast"])
	assert.Equal(t, 30*time.Second, timeouts["slow"])
	_, hasDisabled := timeouts["disabled"]
	assert.False(t, hasDisabled, "disabled sources contribute no timeout entry")
	_, hasUnset := timeouts["unset"]
	assert.False(t, hasUnset, "a source with no configured timeout falls back to the aggregator default, not an entry here")
}
