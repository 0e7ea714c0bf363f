// Package config provides configuration loading and management for listsync.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/listsync/listsync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix used for environment variables read through viper
	EnvPrefix = "LISTSYNC"

	// AirtableAPIKeyEnv is the environment variable holding the record store API key
	AirtableAPIKeyEnv = "LISTSYNC_AIRTABLE_API_KEY"

	// MailchimpAPIKeyEnv is the environment variable holding the list provider API key
	MailchimpAPIKeyEnv = "LISTSYNC_MAILCHIMP_API_KEY"
)

// Empty address policies decide what happens to a candidate that has neither a
// previous nor a current email address.
const (
	// EmptyAddressSkip leaves the record out of the search batch and never pushes it
	EmptyAddressSkip = "skip"

	// EmptyAddressFail aborts the run with a search batch error
	EmptyAddressFail = "fail"
)

const (
	defaultName                 = "default"
	defaultInterval             = 10 * time.Minute
	defaultAirtableEndpoint     = "https://api.airtable.com"
	defaultTable                = "Individuals"
	defaultView                 = "Managed View: Mailing List"
	defaultAirtableRPS          = 5.0
	defaultMailchimpRPS         = 10.0
	defaultPageSize             = 100
	defaultPollInterval         = time.Second
	defaultBatchTimeout         = 10 * time.Minute
	defaultWriteBackConcurrency = 4
	defaultServerAddress        = ":8080"
	defaultDataDir              = "./data"
)

// dataCenterPattern matches a Mailchimp data centre such as "us6"
var dataCenterPattern = regexp.MustCompile(`^[a-z]+[0-9]+$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Name identifies this sync target in status files, logs and metrics.
	// Defaults to "default" if not specified
	Name string `yaml:"name,omitempty"`

	// DataDir is where run status is persisted. Defaults to "./data"
	DataDir string `yaml:"dataDir,omitempty"`

	SyncPolicy   *SyncPolicyConfig  `yaml:"syncPolicy,omitempty"`
	RecordStore  RecordStoreConfig  `yaml:"recordStore"`
	ListProvider ListProviderConfig `yaml:"listProvider"`
	Reconcile    *ReconcileConfig   `yaml:"reconcile,omitempty"`
	Server       *ServerConfig      `yaml:"server,omitempty"`
	Auth         *AuthConfig        `yaml:"auth,omitempty"`
	Telemetry    *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// SyncPolicyConfig defines when reconciliation runs happen
type SyncPolicyConfig struct {
	// Interval is the delay between the end of one run and the start of the next
	Interval string `yaml:"interval"`

	// Jitter is the maximum random offset applied to every delay
	Jitter string `yaml:"jitter,omitempty"`

	// RunOnStart runs a reconciliation immediately instead of waiting one interval
	RunOnStart *bool `yaml:"runOnStart,omitempty"`
}

// RecordStoreConfig defines the Airtable base holding the contact records
type RecordStoreConfig struct {
	Endpoint          string       `yaml:"endpoint,omitempty"`
	BaseID            string       `yaml:"baseId"`
	Table             string       `yaml:"table,omitempty"`
	View              string       `yaml:"view,omitempty"`
	APIKeyFile        string       `yaml:"apiKeyFile,omitempty"`
	RequestsPerSecond float64      `yaml:"requestsPerSecond,omitempty"`
	PageSize          int          `yaml:"pageSize,omitempty"`
	Fields            FieldsConfig `yaml:"fields,omitempty"`
}

// FieldsConfig maps logical contact fields to record store column names.
// Empty entries fall back to the defaults returned by DefaultFields.
type FieldsConfig struct {
	Email                 string `yaml:"email,omitempty"`
	FirstName             string `yaml:"firstName,omitempty"`
	LastName              string `yaml:"lastName,omitempty"`
	InMailingList         string `yaml:"inMailingList,omitempty"`
	PreviousEmail         string `yaml:"previousEmail,omitempty"`
	PreviousInMailingList string `yaml:"previousInMailingList,omitempty"`
	PreviousFirstName     string `yaml:"previousFirstName,omitempty"`
	PreviousLastName      string `yaml:"previousLastName,omitempty"`
}

// ListProviderConfig defines the Mailchimp audience being kept in sync
type ListProviderConfig struct {
	// Endpoint is the API root, e.g. https://us6.api.mailchimp.com/3.0.
	// When empty it is derived from the data centre suffix of the API key.
	Endpoint          string  `yaml:"endpoint,omitempty"`
	ListID            string  `yaml:"listId"`
	APIKeyFile        string  `yaml:"apiKeyFile,omitempty"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`
	PollInterval      string  `yaml:"pollInterval,omitempty"`
	BatchTimeout      string  `yaml:"batchTimeout,omitempty"`
}

// ReconcileConfig tunes the reconciliation pipeline
type ReconcileConfig struct {
	EmptyAddressPolicy   string `yaml:"emptyAddressPolicy,omitempty"`
	WriteBackConcurrency int    `yaml:"writeBackConcurrency,omitempty"`
}

// ServerConfig defines the status HTTP server
type ServerConfig struct {
	Address string `yaml:"address,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetName returns the sync target name, using "default" if not specified
func (c *Config) GetName() string {
	if c.Name == "" {
		return defaultName
	}
	return c.Name
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateSyncPolicy(c.SyncPolicy); err != nil {
		return err
	}
	if err := c.RecordStore.validate(); err != nil {
		return err
	}
	if err := c.ListProvider.validate(); err != nil {
		return err
	}
	if err := c.Reconcile.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func validateSyncPolicy(policy *SyncPolicyConfig) error {
	if policy == nil {
		return nil
	}
	if policy.Interval != "" {
		interval, err := time.ParseDuration(policy.Interval)
		if err != nil {
			return fmt.Errorf("syncPolicy.interval must be a valid duration (e.g., '10m', '1h'): %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("syncPolicy.interval must be positive, got %s", policy.Interval)
		}
	}
	if policy.Jitter != "" {
		jitter, err := time.ParseDuration(policy.Jitter)
		if err != nil {
			return fmt.Errorf("syncPolicy.jitter must be a valid duration: %w", err)
		}
		if jitter < 0 {
			return fmt.Errorf("syncPolicy.jitter must not be negative, got %s", policy.Jitter)
		}
	}
	return nil
}

func (r *RecordStoreConfig) validate() error {
	if r.BaseID == "" {
		return fmt.Errorf("recordStore.baseId is required")
	}
	if r.RequestsPerSecond < 0 {
		return fmt.Errorf("recordStore.requestsPerSecond must not be negative")
	}
	if r.PageSize < 0 || r.PageSize > 100 {
		return fmt.Errorf("recordStore.pageSize must be between 1 and 100, got %d", r.PageSize)
	}

	// Two logical fields sharing a column would make the shadow write-back
	// overwrite a live value.
	seen := make(map[string]string)
	for logical, column := range r.GetFields().byLogicalName() {
		if other, ok := seen[column]; ok {
			return fmt.Errorf("recordStore.fields: %s and %s both map to column %q", other, logical, column)
		}
		seen[column] = logical
	}
	return nil
}

func (l *ListProviderConfig) validate() error {
	if l.ListID == "" {
		return fmt.Errorf("listProvider.listId is required")
	}
	if l.RequestsPerSecond < 0 {
		return fmt.Errorf("listProvider.requestsPerSecond must not be negative")
	}
	for name, value := range map[string]string{"pollInterval": l.PollInterval, "batchTimeout": l.BatchTimeout} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("listProvider.%s must be a valid duration: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("listProvider.%s must be positive, got %s", name, value)
		}
	}
	return nil
}

func (r *ReconcileConfig) validate() error {
	if r == nil {
		return nil
	}
	switch r.EmptyAddressPolicy {
	case "", EmptyAddressSkip, EmptyAddressFail:
	default:
		return fmt.Errorf("reconcile.emptyAddressPolicy must be %q or %q, got %q",
			EmptyAddressSkip, EmptyAddressFail, r.EmptyAddressPolicy)
	}
	if r.WriteBackConcurrency < 0 {
		return fmt.Errorf("reconcile.writeBackConcurrency must not be negative")
	}
	return nil
}

// GetInterval returns the delay between runs
func (c *Config) GetInterval() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.Interval == "" {
		return defaultInterval
	}
	interval, err := time.ParseDuration(c.SyncPolicy.Interval)
	if err != nil {
		return defaultInterval
	}
	return interval
}

// GetJitter returns the maximum random offset applied to the delay between runs
func (c *Config) GetJitter() time.Duration {
	if c.SyncPolicy == nil || c.SyncPolicy.Jitter == "" {
		return 0
	}
	jitter, err := time.ParseDuration(c.SyncPolicy.Jitter)
	if err != nil {
		return 0
	}
	return jitter
}

// RunOnStart reports whether the first run happens immediately at start-up
func (c *Config) RunOnStart() bool {
	if c.SyncPolicy == nil || c.SyncPolicy.RunOnStart == nil {
		return true
	}
	return *c.SyncPolicy.RunOnStart
}

// GetEmptyAddressPolicy returns the configured empty address policy
func (c *Config) GetEmptyAddressPolicy() string {
	if c.Reconcile == nil || c.Reconcile.EmptyAddressPolicy == "" {
		return EmptyAddressSkip
	}
	return c.Reconcile.EmptyAddressPolicy
}

// GetWriteBackConcurrency returns the number of concurrent shadow field updates
func (c *Config) GetWriteBackConcurrency() int {
	if c.Reconcile == nil || c.Reconcile.WriteBackConcurrency == 0 {
		return defaultWriteBackConcurrency
	}
	return c.Reconcile.WriteBackConcurrency
}

// GetDataDir returns the directory holding persisted run status
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return defaultDataDir
	}
	return c.DataDir
}

// GetServerAddress returns the status server listen address
func (c *Config) GetServerAddress() string {
	if c.Server == nil || c.Server.Address == "" {
		return defaultServerAddress
	}
	return c.Server.Address
}

// GetEndpoint returns the Airtable API root
func (r *RecordStoreConfig) GetEndpoint() string {
	if r.Endpoint == "" {
		return defaultAirtableEndpoint
	}
	return strings.TrimRight(r.Endpoint, "/")
}

// GetTable returns the table holding contact records
func (r *RecordStoreConfig) GetTable() string {
	if r.Table == "" {
		return defaultTable
	}
	return r.Table
}

// GetView returns the managed view that filters unchanged records
func (r *RecordStoreConfig) GetView() string {
	if r.View == "" {
		return defaultView
	}
	return r.View
}

// GetRequestsPerSecond returns the client side request rate
func (r *RecordStoreConfig) GetRequestsPerSecond() float64 {
	if r.RequestsPerSecond == 0 {
		return defaultAirtableRPS
	}
	return r.RequestsPerSecond
}

// GetPageSize returns the number of records requested per page
func (r *RecordStoreConfig) GetPageSize() int {
	if r.PageSize == 0 {
		return defaultPageSize
	}
	return r.PageSize
}

// GetAPIKey returns the Airtable API key from APIKeyFile or LISTSYNC_AIRTABLE_API_KEY
func (r *RecordStoreConfig) GetAPIKey() (string, error) {
	return readSecret(r.APIKeyFile, AirtableAPIKeyEnv)
}

// GetFields returns the column mapping with defaults applied
func (r *RecordStoreConfig) GetFields() FieldsConfig {
	fields := DefaultFields()
	custom := r.Fields
	override := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	override(&fields.Email, custom.Email)
	override(&fields.FirstName, custom.FirstName)
	override(&fields.LastName, custom.LastName)
	override(&fields.InMailingList, custom.InMailingList)
	override(&fields.PreviousEmail, custom.PreviousEmail)
	override(&fields.PreviousInMailingList, custom.PreviousInMailingList)
	override(&fields.PreviousFirstName, custom.PreviousFirstName)
	override(&fields.PreviousLastName, custom.PreviousLastName)
	return fields
}

// DefaultFields returns the column names used by the managed Individuals table
func DefaultFields() FieldsConfig {
	return FieldsConfig{
		Email:                 "Email",
		FirstName:             "First Name",
		LastName:              "Last Name",
		InMailingList:         "In Mailing List",
		PreviousEmail:         "Managed Field: Previous Email Address",
		PreviousInMailingList: "Managed Field: Previous In Mailing List",
		PreviousFirstName:     "Managed Field: Previous First Name",
		PreviousLastName:      "Managed Field: Previous Last Name",
	}
}

func (f FieldsConfig) byLogicalName() map[string]string {
	return map[string]string{
		"email":                 f.Email,
		"firstName":             f.FirstName,
		"lastName":              f.LastName,
		"inMailingList":         f.InMailingList,
		"previousEmail":         f.PreviousEmail,
		"previousInMailingList": f.PreviousInMailingList,
		"previousFirstName":     f.PreviousFirstName,
		"previousLastName":      f.PreviousLastName,
	}
}

// GetAPIKey returns the Mailchimp API key from APIKeyFile or LISTSYNC_MAILCHIMP_API_KEY
func (l *ListProviderConfig) GetAPIKey() (string, error) {
	return readSecret(l.APIKeyFile, MailchimpAPIKeyEnv)
}

// GetEndpoint returns the API root, deriving it from the key's data centre
// suffix (e.g. "-us6") when no endpoint is configured.
func (l *ListProviderConfig) GetEndpoint(apiKey string) (string, error) {
	if l.Endpoint != "" {
		return strings.TrimRight(l.Endpoint, "/"), nil
	}
	idx := strings.LastIndex(apiKey, "-")
	if idx < 0 || idx == len(apiKey)-1 {
		return "", fmt.Errorf("listProvider.endpoint is not set and the API key has no data centre suffix")
	}
	dc := apiKey[idx+1:]
	if !dataCenterPattern.MatchString(dc) {
		return "", fmt.Errorf("listProvider.endpoint is not set and the API key data centre suffix is not of the form \"us6\"")
	}
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", dc), nil
}

// GetRequestsPerSecond returns the client side request rate
func (l *ListProviderConfig) GetRequestsPerSecond() float64 {
	if l.RequestsPerSecond == 0 {
		return defaultMailchimpRPS
	}
	return l.RequestsPerSecond
}

// GetPollInterval returns how often a pending batch is polled
func (l *ListProviderConfig) GetPollInterval() time.Duration {
	return durationOrDefault(l.PollInterval, defaultPollInterval)
}

// GetBatchTimeout returns how long a batch may take before the run is failed
func (l *ListProviderConfig) GetBatchTimeout() time.Duration {
	return durationOrDefault(l.BatchTimeout, defaultBatchTimeout)
}

func durationOrDefault(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// readSecret returns a secret using the following priority:
// 1. Read from file if specified
// 2. Read from the named environment variable
//
// The secret from file will have leading/trailing whitespace trimmed.
func readSecret(file, env string) (string, error) {
	if file != "" {
		cleanPath := filepath.Clean(file)

		// #nosec G304 -- path comes from operator supplied configuration
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", file, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("secret file %s is empty", file)
		}
		return secret, nil
	}

	if value := os.Getenv(env); value != "" {
		return value, nil
	}

	return "", fmt.Errorf("no secret configured: set the secret file or %s environment variable", env)
}
