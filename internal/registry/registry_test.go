package registry

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heytcass/jasper/internal/jasperr"
	"github.com/heytcass/jasper/internal/model"
)

func TestRegisterThenHeartbeatThenUnregister(t *testing.T) {
	r := New(time.Minute)
	reg, err := r.Register("frontend-1", os.Getpid(), "")
	require.NoError(t, err)
	assert.Equal(t, "frontend-1", reg.ID)
	assert.Equal(t, 1, r.Count())

	require.NoError(t, r.Heartbeat(reg.ID))
	require.NoError(t, r.Unregister(reg.ID))
	assert.Equal(t, 0, r.Count())
}

func TestRegisterDefaultsAndValidatesNotifyPreference(t *testing.T) {
	r := New(time.Minute)

	defaulted, err := r.Register("frontend-1", os.Getpid(), "")
	require.NoError(t, err)
	assert.Equal(t, model.NotifySignificant, defaulted.NotifyPreference)

	invalid, err := r.Register("frontend-2", os.Getpid(), model.NotifyPreference("bogus"))
	require.NoError(t, err)
	assert.Equal(t, model.NotifySignificant, invalid.NotifyPreference)

	explicit, err := r.Register("frontend-3", os.Getpid(), model.NotifyNone)
	require.NoError(t, err)
	assert.Equal(t, model.NotifyNone, explicit.NotifyPreference)

	got, ok := r.Get(explicit.ID)
	require.True(t, ok)
	assert.Equal(t, model.NotifyNone, got.NotifyPreference)
}

func TestRegisterSameIDTwiceReturnsAlreadyRegistered(t *testing.T) {
	r := New(time.Minute)

	first, err := r.Register("frontend-1", os.Getpid(), "")
	require.NoError(t, err)
	assert.Equal(t, "frontend-1", first.ID)

	_, err = r.Register("frontend-1", os.Getpid(), "")
	require.Error(t, err)
	assert.True(t, jasperr.Is(err, jasperr.AlreadyRegistered))
	assert.Equal(t, 1, r.Count(), "the failed re-registration must not touch the existing entry")
}

func TestHeartbeatUnknownFrontendErrors(t *testing.T) {
	r := New(time.Minute)
	err := r.Heartbeat("does-not-exist")
	require.Error(t, err)
}

func TestSweepEvictsStaleHeartbeatWithDeadProcess(t *testing.T) {
	r := New(10 * time.Millisecond)
	r.pidAlive = func(pid int) bool { return false }

	reg, err := r.Register("frontend-1", 99999, "")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	evicted := r.Sweep()
	assert.Equal(t, []string{reg.ID}, evicted)
	assert.Equal(t, 0, r.Count())
}

func TestSweepEvictsStaleHeartbeatEvenIfProcessStillAlive(t *testing.T) {
	r := New(10 * time.Millisecond)
	r.pidAlive = func(pid int) bool { return true }

	reg, err := r.Register("frontend-1", os.Getpid(), "")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	evicted := r.Sweep()
	assert.Equal(t, []string{reg.ID}, evicted)
	assert.Equal(t, 0, r.Count())
}

func TestSweepKeepsFreshHeartbeatWithLiveProcess(t *testing.T) {
	r := New(time.Minute)
	r.pidAlive = func(pid int) bool { return true }

	_, err := r.Register("frontend-1", os.Getpid(), "")
	require.NoError(t, err)

	evicted := r.Sweep()
	assert.Empty(t, evicted)
	assert.Equal(t, 1, r.Count())
}

func TestSweepEvictsFreshHeartbeatIfProcessGone(t *testing.T) {
	r := New(time.Minute)
	r.pidAlive = func(pid int) bool { return false }

	reg, err := r.Register("frontend-1", 99999, "")
	require.NoError(t, err)

	evicted := r.Sweep()
	assert.Equal(t, []string{reg.ID}, evicted)
	assert.Equal(t, 0, r.Count())
}
