package secret

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvBackendResolvesSetVariable(t *testing.T) {
	t.Setenv("JASPER_TEST_SECRET", "shh")
	r, err := NewResolver(filepath.Join(t.TempDir(), "missing.keystore"), make([]byte, 32))
	require.NoError(t, err)

	v, err := r.Resolve("env:JASPER_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "shh", v)
}

func TestEnvBackendErrorsOnUnsetVariable(t *testing.T) {
	r, err := NewResolver(filepath.Join(t.TempDir(), "missing.keystore"), make([]byte, 32))
	require.NoError(t, err)

	_, err = r.Resolve("env:JASPER_TEST_SECRET_UNSET")
	assert.Error(t, err)
}

func TestKeystoreBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.enc")
	key := make([]byte, 32)
	require.NoError(t, Seal(path, key, map[string]string{"anthropic_api_key": "sk-test"}))

	r, err := NewResolver(path, key)
	require.NoError(t, err)

	v, err := r.Resolve("keystore:anthropic_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", v)
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	t.Setenv("JASPER_TEST_SECRET_2", "first")
	r, err := NewResolver(filepath.Join(t.TempDir(), "missing.keystore"), make([]byte, 32))
	require.NoError(t, err)

	v1, err := r.Resolve("env:JASPER_TEST_SECRET_2")
	require.NoError(t, err)
	t.Setenv("JASPER_TEST_SECRET_2", "second")
	v2, err := r.Resolve("env:JASPER_TEST_SECRET_2")
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "resolved value must be cached for the process lifetime")
}

func TestParseRefRejectsMalformed(t *testing.T) {
	_, err := ParseRef("no-colon-here")
	assert.Error(t, err)
}
