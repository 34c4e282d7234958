package daemon

import (
	"sort"
	"time"

	"github.com/heytcass/jasper/internal/aggregator"
	"github.com/heytcass/jasper/internal/aggregator/source"
	"github.com/heytcass/jasper/internal/config"
)

// BuildSources constructs one aggregator.Source per enabled context_sources
// entry, in deterministic (sorted by id) order. "demo" is the only Kind the
// core repo ships a concrete adapter for; calendar/OAuth-backed sources are
// external, out of scope for this daemon's own build.
func BuildSources(cfg map[string]config.ContextSourceConfig) []aggregator.Source {
	ids := make([]string, 0, len(cfg))
	for id := range cfg {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sources []aggregator.Source
	for _, id := range ids {
		sc := cfg[id]
		if !sc.Enabled {
			continue
		}
		switch sc.Kind {
		case "demo":
			sources = append(sources, source.NewDemo(id))
		}
	}
	return sources
}

// DefaultSourceTimeout is the fetch timeout applied to a source whose
// context_sources.<id>.timeout_seconds is unset or zero.
const DefaultSourceTimeout = 5 * time.Second

// SourceTimeouts builds the per-source timeout map the aggregator enforces:
// each enabled source's own configured timeout_seconds, independent of every
// other source's. A source with no configured timeout is left out of the
// map entirely; the aggregator falls back to DefaultSourceTimeout for it.
func SourceTimeouts(cfg map[string]config.ContextSourceConfig) map[string]time.Duration {
	timeouts := make(map[string]time.Duration, len(cfg))
	for id, sc := range cfg {
		if !sc.Enabled || sc.TimeoutSeconds <= 0 {
			continue
		}
		timeouts[id] = time.Duration(sc.TimeoutSeconds) * time.Second
	}
	return timeouts
}
