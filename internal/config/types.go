package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure parsed from pubpipe YAML.
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline defines the whole service: storage locations, fetch endpoints,
// tuning, search categories, and publishing.
type Pipeline struct {
	Name string `yaml:"name"`

	// Storage. Store selects the record store backend: "file" or "postgres".
	Store          string `yaml:"store"`
	DataDir        string `yaml:"data_dir"`
	BlobDir        string `yaml:"blob_dir"`
	DocsDir        string `yaml:"docs_dir"`
	EventDB        string `yaml:"event_db"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env"`

	// Engine tuning.
	MaxAttempts  int      `yaml:"max_attempts"`
	LeaseTimeout Duration `yaml:"lease_timeout"`
	StageTimeout Duration `yaml:"stage_timeout"`
	MaxResults   int      `yaml:"max_results"`

	// Cadences for the run loop.
	DiscoveryInterval Duration `yaml:"discovery_interval"`
	StatusInterval    Duration `yaml:"status_interval"`
	TickInterval      Duration `yaml:"tick_interval"`

	Entrez     Entrez     `yaml:"entrez"`
	PMCBaseURL string     `yaml:"pmc_base_url"`
	Ocr        Ocr        `yaml:"ocr"`
	Web        Web        `yaml:"web"`
	Feeds      Feeds      `yaml:"feeds"`
	Git        Git        `yaml:"git"`
	Categories []Category `yaml:"categories"`
}

// Entrez configures the PubMed API client.
type Entrez struct {
	BaseURL   string `yaml:"base_url"`
	Email     string `yaml:"email"`
	APIKeyEnv string `yaml:"api_key_env"`
	StartYear int    `yaml:"start_year"`
	EndYear   int    `yaml:"end_year"`
}

// Ocr configures the external text-extraction service.
type Ocr struct {
	Endpoint  string `yaml:"endpoint"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Web configures the status UI.
type Web struct {
	Port int `yaml:"port"`
}

// Feeds configures RSS generation.
type Feeds struct {
	BaseURL string `yaml:"base_url"`
}

// Git configures docs publishing.
type Git struct {
	Enabled bool   `yaml:"enabled"`
	RepoDir string `yaml:"repo_dir"`
	Branch  string `yaml:"branch"`
}

// Category is one search category with its query terms.
type Category struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// Duration is a time.Duration that unmarshals from strings like "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
