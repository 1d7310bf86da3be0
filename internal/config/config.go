package config

import (
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Environment names a Dataverse environment the pipelines talk to.
type Environment struct {
	URL string `yaml:"url"`
	// Unmanaged marks a development environment: deploys to it always
	// overwrite with unmanaged artifacts.
	Unmanaged bool `yaml:"unmanaged"`
}

// Config is the resolved, immutable pipeline configuration.
type Config struct {
	// Development is the environment solutions are exported from.
	Development string `yaml:"development"`

	// Environments maps a target name to its connection settings.
	Environments map[string]Environment `yaml:"environments"`

	// Settings holds named scalar values such as service account UPNs,
	// looked up by the keys solution entries reference. Values of the
	// form "keyring:service/user" resolve through the OS keyring.
	Settings map[string]string `yaml:"settings"`

	ManifestPath string `yaml:"manifestPath"`
	SnapshotDir  string `yaml:"snapshotDir"`
	ArtifactDir  string `yaml:"artifactDir"`
	JournalPath  string `yaml:"journalPath"`

	// Engine selects the workflow engine: "sync" (default), "durable"
	// or "dbos".
	Engine string `yaml:"engine"`
}

// Resolve merges the given layer files in order and decodes the result.
func Resolve(paths ...string) (Config, error) {
	layers := make([]Layer, 0, len(paths))
	for _, p := range paths {
		layer, err := LoadLayer(p)
		if err != nil {
			return Config{}, err
		}
		layers = append(layers, layer)
	}
	return decode(MergeLayers(layers...))
}

func decode(merged Layer) (Config, error) {
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, fmt.Errorf("encode merged config: %w", err)
	}
	cfg := Config{
		ManifestPath: "solutions.yaml",
		SnapshotDir:  "solutions",
		ArtifactDir:  "out",
		JournalPath:  "alm.db",
		Engine:       "sync",
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode merged config: %w", err)
	}
	return cfg, nil
}

const keyringPrefix = "keyring:"

// Setting returns the named setting, resolving keyring references. A
// missing key is an error so callers never fall through to an empty
// identity or secret.
func (c Config) Setting(key string) (string, error) {
	v, ok := c.Settings[key]
	if !ok {
		return "", fmt.Errorf("config setting %q is not defined", key)
	}
	if !strings.HasPrefix(v, keyringPrefix) {
		return v, nil
	}
	ref := strings.TrimPrefix(v, keyringPrefix)
	service, user, ok := strings.Cut(ref, "/")
	if !ok {
		return "", fmt.Errorf("config setting %q: keyring reference %q must be service/user", key, ref)
	}
	secret, err := keyring.Get(service, user)
	if err != nil {
		return "", fmt.Errorf("config setting %q: keyring lookup: %w", key, err)
	}
	return secret, nil
}

// TargetEnvironment returns the named target environment.
func (c Config) TargetEnvironment(name string) (Environment, error) {
	env, ok := c.Environments[name]
	if !ok {
		return Environment{}, fmt.Errorf("environment %q is not configured", name)
	}
	return env, nil
}
