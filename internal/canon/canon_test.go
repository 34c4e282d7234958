package canon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/model"
)

func TestFingerprintStableUnderReorderAndCaptureTime(t *testing.T) {
	start := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	a := []model.ContextItem{
		{SourceID: "cal", SourceUID: "evt-2", Title: "Standup", StartsAt: &start},
		{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist"},
	}
	b := []model.ContextItem{
		{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist"},
		{SourceID: "cal", SourceUID: "evt-2", Title: "Standup", StartsAt: &start},
	}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintChangesOnTitleEdit(t *testing.T) {
	a := []model.ContextItem{{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist"}}
	b := []model.ContextItem{{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist (rescheduled)"}}
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprintIgnoresWhitespaceNormalization(t *testing.T) {
	a := []model.ContextItem{{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist   appointment"}}
	b := []model.ContextItem{{SourceID: "cal", SourceUID: "evt-1", Title: "Dentist appointment"}}
	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestRedactStripsFlaggedFields(t *testing.T) {
	item := model.ContextItem{Location: "123 Main St", Description: "sensitive"}
	out := Redact(item, true, true)
	assert.Empty(t, out.Location)
	assert.Empty(t, out.Description)
	assert.Equal(t, "123 Main St", item.Location, "Redact must not mutate its input")
}

func TestOrderNilStartsAtSortsLast(t *testing.T) {
	start := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	items := []model.ContextItem{
		{SourceID: "a", SourceUID: "1"},
		{SourceID: "b", SourceUID: "2", StartsAt: &start},
	}
	ordered := Order(items)
	require.Len(t, ordered, 2)
	assert.Equal(t, "b", ordered[0].SourceID)
	assert.Equal(t, "a", ordered[1].SourceID)
}
