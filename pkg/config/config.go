package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/sightlinelabs/vizbench/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .vizbench/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in a stable,
// logical order matching the TOML section layout.
func ValidConfigKeys() []string {
	ordered := []string{
		"dataset.train_embeddings",
		"dataset.validation_embeddings",
		"dataset.dimensions",
		"dataset.max_samples",
		"retrieval.backend",
		"retrieval.collection",
		"retrieval.top_k",
		"retrieval.sqlite_path",
		"retrieval.chroma_url",
		"retrieval.qdrant_host",
		"retrieval.qdrant_port",
		"evaluation.results_path",
		"evaluation.with_context",
		"evaluation.without_context",
		"evaluation.attempt_timeout_seconds",
		"evaluation.max_retries",
		"events.provider",
		"events.kafka_brokers",
		"events.kafka_topic",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .vizbench/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config with sane defaults. Fields explicitly
// set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
// The mode booleans are handled in ParseConfigTOML via decode metadata.
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Dataset.TrainEmbeddings == "" {
		cfg.Dataset.TrainEmbeddings = defaults.Dataset.TrainEmbeddings
	}
	if cfg.Dataset.ValidationEmbeddings == "" {
		cfg.Dataset.ValidationEmbeddings = defaults.Dataset.ValidationEmbeddings
	}
	if cfg.Dataset.Dimensions == 0 {
		cfg.Dataset.Dimensions = defaults.Dataset.Dimensions
	}
	if cfg.Dataset.EmbeddingProvider == "" {
		cfg.Dataset.EmbeddingProvider = defaults.Dataset.EmbeddingProvider
	}

	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = defaults.Retrieval.Backend
	}
	if cfg.Retrieval.Collection == "" {
		cfg.Retrieval.Collection = defaults.Retrieval.Collection
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = defaults.Retrieval.TopK
	}
	if cfg.Retrieval.QdrantPort == 0 {
		cfg.Retrieval.QdrantPort = defaults.Retrieval.QdrantPort
	}

	if cfg.Evaluation.ResultsPath == "" {
		cfg.Evaluation.ResultsPath = defaults.Evaluation.ResultsPath
	}
	if cfg.Evaluation.AttemptTimeoutSeconds == 0 {
		cfg.Evaluation.AttemptTimeoutSeconds = defaults.Evaluation.AttemptTimeoutSeconds
	}
	if cfg.Evaluation.MaxRetries == 0 {
		cfg.Evaluation.MaxRetries = defaults.Evaluation.MaxRetries
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = defaults.Events.KafkaTopic
	}
}

// SaveConfig persists the configuration to config.toml in the target .vizbench/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	// Both evaluation modes run unless the file explicitly disables them.
	// TOML cannot distinguish an absent bool from false, so consult metadata.
	if !md.IsDefined("evaluation", "with_context") {
		cfg.Evaluation.WithContext = true
	}
	if !md.IsDefined("evaluation", "without_context") {
		cfg.Evaluation.WithoutContext = true
	}

	return cfg, nil
}
