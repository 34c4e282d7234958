package source

import (
	"context"
	"time"

	"github.com/heytcass/jasper/internal/model"
)

// Demo is a static Source with no network I/O, used when no real context
// adapter is configured and by every aggregator test. It is not the
// calendar OAuth client; it is the minimal concrete Source the aggregator
// needs to have at least one implementation of in the core repo.
type Demo struct {
	id    string
	items []model.ContextItem
}

// NewDemo builds a Demo source seeded with a small, fixed set of upcoming
// items anchored relative to now, so repeated runs produce plausible but
// deterministic-shaped data.
func NewDemo(id string) *Demo {
	now := time.Now()
	standup := now.Add(45 * time.Minute)
	standupEnd := standup.Add(15 * time.Minute)
	dentist := now.Add(26 * time.Hour)
	dentistEnd := dentist.Add(time.Hour)

	return &Demo{
		id: id,
		items: []model.ContextItem{
			{
				SourceID:  id,
				SourceUID: "demo-standup",
				Kind:      "event",
				Title:     "Daily standup",
				StartsAt:  &standup,
				EndsAt:    &standupEnd,
			},
			{
				SourceID:  id,
				SourceUID: "demo-dentist",
				Kind:      "event",
				Title:     "Dentist appointment",
				Location:  "123 Main St",
				StartsAt:  &dentist,
				EndsAt:    &dentistEnd,
			},
		},
	}
}

func (d *Demo) ID() string { return d.id }

// Fetch returns the fixed demo items that fall within [windowStart,
// windowEnd]; an item with no StartsAt is always included, matching how a
// real source would treat a non-temporal fact (a task with no due date).
func (d *Demo) Fetch(ctx context.Context, windowStart, windowEnd time.Time) ([]model.ContextItem, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	var out []model.ContextItem
	for _, item := range d.items {
		if item.StartsAt == nil {
			out = append(out, item)
			continue
		}
		if item.StartsAt.Before(windowStart) || item.StartsAt.After(windowEnd) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}
