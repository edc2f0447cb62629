package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, envconfig.Process("PROVISION", &cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"admin", "buyer", "producer"}, cfg.Roles)

	state, err := cfg.DesiredState()
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "buyer", "producer"}, state.Roles)
	assert.Empty(t, state.Users)
}

func TestConfigSeedsFromEnvironment(t *testing.T) {
	t.Setenv("PROVISION_DEFAULT_ADMIN_EMAIL", "admin@ifarmer.local")
	t.Setenv("PROVISION_DEFAULT_ADMIN_PASSWORD", "s3cret")
	t.Setenv("PROVISION_DEFAULT_PRODUCER_EMAIL", " grower@ifarmer.local ")
	t.Setenv("PROVISION_DEFAULT_PRODUCER_PASSWORD", "grow")

	var cfg Config
	require.NoError(t, envconfig.Process("PROVISION", &cfg))

	state, err := cfg.DesiredState()
	require.NoError(t, err)
	assert.Equal(t, []UserSeed{
		{Email: "admin@ifarmer.local", Password: "s3cret", Role: "admin"},
		{Email: "grower@ifarmer.local", Password: "grow", Role: "producer"},
	}, state.Users)
}

func TestConfigDesiredStateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.yaml")
	doc := `roles: [admin, " buyer ", ""]
users:
  - email: a@x.com
    password: p1
    role: admin
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg := Config{File: path, Roles: []string{"ignored"}}
	state, err := cfg.DesiredState()
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "buyer"}, state.Roles)
	assert.Equal(t, []UserSeed{{Email: "a@x.com", Password: "p1", Role: "admin"}}, state.Users)
}

func TestLoadDesiredStateErrors(t *testing.T) {
	_, err := LoadDesiredState(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles: [admin"), 0o600))
	_, err = LoadDesiredState(path)
	assert.Error(t, err)
}
