package rerun_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ErakhtinB/rerun"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_RERUN_TOKEN", "from-env")
	path := writeConfig(t, `
endpoint: ${TEST_RERUN_ENDPOINT:-localhost:51234}
token: ${TEST_RERUN_TOKEN}
tls: true
executor: inline
logging:
  level: debug
`)

	cfg, err := rerun.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, &rerun.Config{
		Endpoint:         "localhost:51234",
		Token:            "from-env",
		TLS:              true,
		MaxRetryAttempts: 3,
		Executor:         rerun.ExecutorInline,
		Logging:          rerun.LoggingConfig{Env: "prod", Level: "debug"},
	}, cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := rerun.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = rerun.LoadConfig(writeConfig(t, "endpoint: [unterminated"))
	require.Error(t, err)

	_, err = rerun.LoadConfig(writeConfig(t, "token: abc\n"))
	require.ErrorIs(t, err, rerun.ErrConfiguration)
}

func TestConfigValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		config *rerun.Config
		valid  bool
	}{
		"nil":            {config: nil},
		"no endpoint":    {config: &rerun.Config{Endpoint: "  "}},
		"minimal":        {config: &rerun.Config{Endpoint: "localhost:1"}, valid: true},
		"spawn executor": {config: &rerun.Config{Endpoint: "localhost:1", Executor: "spawn"}, valid: true},
		"bad executor":   {config: &rerun.Config{Endpoint: "localhost:1", Executor: "threads"}},
		"retry cap":      {config: &rerun.Config{Endpoint: "localhost:1", MaxRetryAttempts: 5}, valid: true},
		"too many retry": {config: &rerun.Config{Endpoint: "localhost:1", MaxRetryAttempts: 6}},
		"negative retry": {config: &rerun.Config{Endpoint: "localhost:1", MaxRetryAttempts: -1}},
	} {
		t.Run(name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, rerun.ErrConfiguration)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RERUN_ENDPOINT", "")
	require.Nil(t, rerun.ConfigFromEnv())

	t.Setenv("RERUN_ENDPOINT", "search.example.com:443")
	t.Setenv("RERUN_TOKEN", "tok")
	cfg := rerun.ConfigFromEnv()
	require.NotNil(t, cfg)
	require.Equal(t, "search.example.com:443", cfg.Endpoint)
	require.Equal(t, "tok", cfg.Token)
	require.Equal(t, rerun.ExecutorAuto, cfg.Executor)
	require.NoError(t, cfg.Validate())
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := rerun.NewClient(&rerun.Config{})
	require.ErrorIs(t, err, rerun.ErrConfiguration)

	client, err := rerun.NewClient(&rerun.Config{Endpoint: "localhost:1", Executor: "inline"})
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestApplyDefaultsRetryAttempts(t *testing.T) {
	cfg := &rerun.Config{Endpoint: "localhost:1"}
	cfg.ApplyDefaults()
	require.Equal(t, 3, cfg.MaxRetryAttempts)

	cfg = &rerun.Config{Endpoint: "localhost:1", MaxRetryAttempts: 1}
	cfg.ApplyDefaults()
	require.Equal(t, 1, cfg.MaxRetryAttempts)

	cfg = &rerun.Config{Endpoint: "localhost:1", MaxRetryAttempts: -1}
	cfg.ApplyDefaults()
	require.Equal(t, -1, cfg.MaxRetryAttempts)
	require.ErrorIs(t, cfg.Validate(), rerun.ErrConfiguration)
}

func TestLoadConfigDisablesRetries(t *testing.T) {
	cfg, err := rerun.LoadConfig(writeConfig(t, "endpoint: localhost:1\nmax_retry_attempts: 1\n"))
	require.NoError(t, err)
	require.Equal(t, 1, cfg.MaxRetryAttempts)

	_, err = rerun.LoadConfig(writeConfig(t, "endpoint: localhost:1\nmax_retry_attempts: -2\n"))
	require.ErrorIs(t, err, rerun.ErrConfiguration)
}
