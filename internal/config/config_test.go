package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `recordStore:
  baseId: appTEST
listProvider:
  listId: list123
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		yamlContent string
		wantErr     string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name:        "minimal_config_uses_defaults",
			yamlContent: minimalYAML,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "default", cfg.GetName())
				assert.Equal(t, 10*time.Minute, cfg.GetInterval())
				assert.Equal(t, time.Duration(0), cfg.GetJitter())
				assert.True(t, cfg.RunOnStart())
				assert.Equal(t, "https://api.airtable.com", cfg.RecordStore.GetEndpoint())
				assert.Equal(t, "Individuals", cfg.RecordStore.GetTable())
				assert.Equal(t, "Managed View: Mailing List", cfg.RecordStore.GetView())
				assert.Equal(t, 100, cfg.RecordStore.GetPageSize())
				assert.InDelta(t, 5.0, cfg.RecordStore.GetRequestsPerSecond(), 0.001)
				assert.Equal(t, DefaultFields(), cfg.RecordStore.GetFields())
				assert.Equal(t, time.Second, cfg.ListProvider.GetPollInterval())
				assert.Equal(t, 10*time.Minute, cfg.ListProvider.GetBatchTimeout())
				assert.Equal(t, EmptyAddressSkip, cfg.GetEmptyAddressPolicy())
				assert.Equal(t, 4, cfg.GetWriteBackConcurrency())
				assert.Equal(t, ":8080", cfg.GetServerAddress())
				assert.Equal(t, "./data", cfg.GetDataDir())
			},
		},
		{
			name: "full_config",
			yamlContent: `name: newsletter
dataDir: /var/lib/listsync
syncPolicy:
  interval: 15m
  jitter: 20s
  runOnStart: false
recordStore:
  endpoint: https://airtable.example.com/
  baseId: appTEST
  table: People
  view: Changed
  pageSize: 50
  requestsPerSecond: 2
  fields:
    email: Primary Email
    previousEmail: Synced Email
listProvider:
  endpoint: https://us6.api.mailchimp.com/3.0
  listId: list123
  pollInterval: 5s
  batchTimeout: 2m
reconcile:
  emptyAddressPolicy: fail
  writeBackConcurrency: 8
server:
  address: ":9090"
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "newsletter", cfg.GetName())
				assert.Equal(t, 15*time.Minute, cfg.GetInterval())
				assert.Equal(t, 20*time.Second, cfg.GetJitter())
				assert.False(t, cfg.RunOnStart())
				assert.Equal(t, "https://airtable.example.com", cfg.RecordStore.GetEndpoint())
				assert.Equal(t, "People", cfg.RecordStore.GetTable())
				assert.Equal(t, "Changed", cfg.RecordStore.GetView())
				assert.Equal(t, 50, cfg.RecordStore.GetPageSize())
				fields := cfg.RecordStore.GetFields()
				assert.Equal(t, "Primary Email", fields.Email)
				assert.Equal(t, "Synced Email", fields.PreviousEmail)
				assert.Equal(t, "First Name", fields.FirstName)
				assert.Equal(t, 5*time.Second, cfg.ListProvider.GetPollInterval())
				assert.Equal(t, 2*time.Minute, cfg.ListProvider.GetBatchTimeout())
				assert.Equal(t, EmptyAddressFail, cfg.GetEmptyAddressPolicy())
				assert.Equal(t, 8, cfg.GetWriteBackConcurrency())
				assert.Equal(t, ":9090", cfg.GetServerAddress())
				assert.Equal(t, "/var/lib/listsync", cfg.GetDataDir())
			},
		},
		{
			name: "missing_base_id",
			yamlContent: `listProvider:
  listId: list123
`,
			wantErr: "recordStore.baseId is required",
		},
		{
			name: "missing_list_id",
			yamlContent: `recordStore:
  baseId: appTEST
`,
			wantErr: "listProvider.listId is required",
		},
		{
			name:        "invalid_interval",
			yamlContent: minimalYAML + "syncPolicy:\n  interval: soon\n",
			wantErr:     "syncPolicy.interval must be a valid duration",
		},
		{
			name:        "invalid_empty_address_policy",
			yamlContent: minimalYAML + "reconcile:\n  emptyAddressPolicy: ignore\n",
			wantErr:     "reconcile.emptyAddressPolicy",
		},
		{
			name:        "invalid_batch_timeout",
			yamlContent: minimalYAML + "  batchTimeout: -1s\n",
			wantErr:     "listProvider.batchTimeout must be positive",
		},
		{
			name: "live_and_shadow_share_a_column",
			yamlContent: `recordStore:
  baseId: appTEST
  fields:
    previousEmail: Email
listProvider:
  listId: list123
`,
			wantErr: "both map to column",
		},
		{
			name:        "malformed_yaml",
			yamlContent: "recordStore: [",
			wantErr:     "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yamlContent), 0600))

			cfg, err := LoadConfig(WithConfigPath(path))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_PathErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")

	_, err = LoadConfig(WithConfigPath(""))
	require.Error(t, err)

	_, err = LoadConfig(WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate symlinks")
}

func TestRecordStoreConfig_GetAPIKey(t *testing.T) {
	t.Run("reads and trims key file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "airtable")
		require.NoError(t, os.WriteFile(path, []byte("  keyABC \n"), 0600))

		cfg := RecordStoreConfig{APIKeyFile: path}
		key, err := cfg.GetAPIKey()
		require.NoError(t, err)
		assert.Equal(t, "keyABC", key)
	})

	t.Run("empty key file is an error", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "airtable")
		require.NoError(t, os.WriteFile(path, []byte("\n"), 0600))

		cfg := RecordStoreConfig{APIKeyFile: path}
		_, err := cfg.GetAPIKey()
		require.Error(t, err)
	})
}

//nolint:paralleltest // mutates process environment
func TestListProviderConfig_GetAPIKeyFromEnv(t *testing.T) {
	t.Setenv(MailchimpAPIKeyEnv, "abc123-us6")

	cfg := ListProviderConfig{ListID: "list"}
	key, err := cfg.GetAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "abc123-us6", key)

	t.Setenv(MailchimpAPIKeyEnv, "")
	_, err = cfg.GetAPIKey()
	require.Error(t, err)
	assert.Contains(t, err.Error(), MailchimpAPIKeyEnv)
}

func TestListProviderConfig_GetEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		apiKey   string
		want     string
		wantErr  bool
	}{
		{name: "derived from key", apiKey: "0123abcd-us6", want: "https://us6.api.mailchimp.com/3.0"},
		{name: "explicit endpoint wins", endpoint: "http://localhost:9999/3.0/", apiKey: "x-us1", want: "http://localhost:9999/3.0"},
		{name: "key without suffix", apiKey: "0123abcd", wantErr: true},
		{name: "key with trailing dash", apiKey: "0123abcd-", wantErr: true},
		{name: "suffix with host characters", apiKey: "0123abcd-evil.example.com/x", wantErr: true},
		{name: "suffix with userinfo", apiKey: "0123abcd-us6@attacker", wantErr: true},
		{name: "suffix without digits", apiKey: "0123abcd-us", wantErr: true},
		{name: "upper case suffix", apiKey: "0123abcd-US6", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := ListProviderConfig{Endpoint: tt.endpoint}
			got, err := cfg.GetEndpoint(tt.apiKey)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
