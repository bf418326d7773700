package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, 1, s.MinDelaySec)
	assert.Equal(t, 5, s.MaxDelaySec)
	assert.Equal(t, 256, s.ToLimits().MaxCodeLength)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"min delay above max", func(s *Settings) { s.MinDelaySec, s.MaxDelaySec = 6, 2 }},
		{"zero timeout", func(s *Settings) { s.TimeoutSec = 0 }},
		{"zero max codes", func(s *Settings) { s.MaxCodes = 0 }},
		{"unknown transport", func(s *Settings) { s.Transport = "carrier-pigeon" }},
		{"unknown format", func(s *Settings) { s.OutputFormat = "xml" }},
		{"bad port", func(s *Settings) { s.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().VerifyURL, s.VerifyURL)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			s := DefaultSettings()
			s.MaxDelaySec = 9
			s.Transport = "browser"
			s.Browser.Headless = false
			require.NoError(t, s.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 9, loaded.MaxDelaySec)
			assert.Equal(t, "browser", loaded.Transport)
			assert.False(t, loaded.Browser.Headless)
			assert.Equal(t, s.Server.Port, loaded.Server.Port)
		})
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_delay_sec = 2\n[server]\nport = 8080\n"), 0600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.MaxDelaySec)
	assert.Equal(t, 8080, s.Server.Port)
	assert.Equal(t, 25, s.TimeoutSec)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"BANDCAMP_CLIENT_ID": "cid",
		"BANDCAMP_SESSION":   "sess",
		"BANDCAMP_CRUMB":     "crumb",
	}
	s := DefaultSettings()
	s.Credentials.Identity = "kept"
	s.ApplyEnv(func(k string) string { return env[k] })

	creds := s.ToCredentials()
	assert.Equal(t, "cid", creds.ClientID)
	assert.Equal(t, "sess", creds.Session)
	assert.Equal(t, "crumb", creds.Crumb)
	assert.Equal(t, "kept", creds.Identity)
	assert.True(t, s.HasCredentials())
}
