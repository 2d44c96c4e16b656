// Package config loads the typed service configuration from viper.
package config

import (
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/spf13/viper"
)

type Config struct {
	Port              int                     `mapstructure:"port"`
	EnableCORS        bool                    `mapstructure:"enable_cors"`
	Storage           StorageConfig           `mapstructure:"storage"`
	Store             StoreConfig             `mapstructure:"store"`
	Delete            DeleteConfig            `mapstructure:"delete"`
	ChangeFeed        ChangeFeedConfig        `mapstructure:"changefeed"`
	ExtendedQueryTags ExtendedQueryTagsConfig `mapstructure:"extended_query_tags"`
	Backfill          BackfillConfig          `mapstructure:"backfill"`
}

type StorageConfig struct {
	// Backend is "fs" or "gcs".
	Backend string `mapstructure:"backend"`
	Root    string `mapstructure:"root"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	// Overwrite replaces existing blobs. Strict mode fails on conflicts.
	Overwrite bool `mapstructure:"overwrite"`
}

type StoreConfig struct {
	MaxParallelism       int           `mapstructure:"max_parallelism"`
	MaxRequestSize       int64         `mapstructure:"max_request_size"`
	ValidationMode       string        `mapstructure:"validation_mode"`
	DropInvalidQueryTags bool          `mapstructure:"drop_invalid_query_tags"`
	StaleCreatingAfter   time.Duration `mapstructure:"stale_creating_after"`
}

type DeleteConfig struct {
	Delay        time.Duration `mapstructure:"delay"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackOff time.Duration `mapstructure:"retry_backoff"`
	BatchSize    int           `mapstructure:"batch_size"`
	Interval     time.Duration `mapstructure:"interval"`
}

type ChangeFeedConfig struct {
	MaxLimit int `mapstructure:"max_limit"`
}

type ExtendedQueryTagsConfig struct {
	MaxAllowedCount int `mapstructure:"max_allowed_count"`
	BatchSize       int `mapstructure:"reindex_batch_size"`
	BatchCount      int `mapstructure:"reindex_batch_count"`
}

type BackfillConfig struct {
	BatchSize  int `mapstructure:"batch_size"`
	BatchCount int `mapstructure:"batch_count"`
}

// SetDefaults registers the default of every key with viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 3000)
	v.SetDefault("enable_cors", false)

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.root", "./")
	v.SetDefault("storage.overwrite", true)

	v.SetDefault("store.max_parallelism", 4)
	v.SetDefault("store.max_request_size", 2<<30)
	v.SetDefault("store.validation_mode", "full")
	v.SetDefault("store.drop_invalid_query_tags", false)
	v.SetDefault("store.stale_creating_after", "1h")

	v.SetDefault("delete.delay", "5m")
	v.SetDefault("delete.max_retries", 5)
	v.SetDefault("delete.retry_backoff", "1m")
	v.SetDefault("delete.batch_size", 100)
	v.SetDefault("delete.interval", "1m")

	v.SetDefault("changefeed.max_limit", 100)

	v.SetDefault("extended_query_tags.max_allowed_count", 128)
	v.SetDefault("extended_query_tags.reindex_batch_size", 100)
	v.SetDefault("extended_query_tags.reindex_batch_count", 5)

	v.SetDefault("backfill.batch_size", 100)
	v.SetDefault("backfill.batch_count", 5)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Storage),
		validation.Field(&c.Store),
		validation.Field(&c.Delete),
		validation.Field(&c.ChangeFeed),
		validation.Field(&c.ExtendedQueryTags),
		validation.Field(&c.Backfill),
	)
}

func (c StorageConfig) Validate() error {
	var rootRules, bucketRules []validation.Rule
	switch c.Backend {
	case "fs":
		rootRules = append(rootRules, validation.Required)
	case "gcs":
		bucketRules = append(bucketRules, validation.Required)
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In("fs", "gcs")),
		validation.Field(&c.Root, rootRules...),
		validation.Field(&c.Bucket, bucketRules...),
	)
}

func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxParallelism, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxRequestSize, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.ValidationMode, validation.In("full", "minimal")),
		validation.Field(&c.StaleCreatingAfter, validation.Required),
	)
}

func (c DeleteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRetries, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Interval, validation.Required),
	)
}

func (c ChangeFeedConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxLimit, validation.Required, validation.Min(1)),
	)
}

func (c ExtendedQueryTagsConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxAllowedCount, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchCount, validation.Required, validation.Min(1)),
	)
}

func (c BackfillConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchCount, validation.Required, validation.Min(1)),
	)
}
