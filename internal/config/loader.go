package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it applies defaults for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./pubpipe.yaml, ~/.pubpipe/config.yaml.
// When none exists, a default configuration is returned.
func LoadDefault() (*Config, error) {
	candidates := []string{"pubpipe.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".pubpipe", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	cfg := &Config{}
	applyDefaults(cfg)
	return cfg, nil
}

// defaultCategories mirrors the search categories the service was built
// around. A config file with its own categories replaces them entirely.
var defaultCategories = []Category{
	{Name: "Cannabis Formulation", Terms: []string{"cannabis formulation", "cannabinoid formulation"}},
	{Name: "Extraction Methods", Terms: []string{"cannabis extraction", "cannabinoid extraction methods"}},
	{Name: "Terpenes", Terms: []string{"cannabis terpenes", "terpene profile cannabis"}},
	{Name: "Cannabinoids", Terms: []string{"cannabinoid pharmacology", "THC CBD formulation"}},
	{Name: "Stability Testing", Terms: []string{"cannabinoid stability", "cannabis product stability"}},
	{Name: "Analytical Methods", Terms: []string{"cannabis analytical methods", "cannabinoid quantification"}},
}

func applyDefaults(cfg *Config) {
	p := &cfg.Pipeline

	if p.Name == "" {
		p.Name = "formulation-pubmed"
	}
	if p.Store == "" {
		p.Store = "file"
	}
	if p.DataDir == "" {
		p.DataDir = "pubmed/articles"
	}
	if p.BlobDir == "" {
		p.BlobDir = "pubmed/blobs"
	}
	if p.DocsDir == "" {
		p.DocsDir = "docs"
	}
	if p.PostgresDSNEnv == "" {
		p.PostgresDSNEnv = "PUBPIPE_POSTGRES_DSN"
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.LeaseTimeout == 0 {
		p.LeaseTimeout = Duration(10 * time.Minute)
	}
	if p.StageTimeout == 0 {
		p.StageTimeout = Duration(90 * time.Second)
	}
	if p.MaxResults == 0 {
		p.MaxResults = 100
	}
	if p.DiscoveryInterval == 0 {
		p.DiscoveryInterval = Duration(time.Hour)
	}
	if p.StatusInterval == 0 {
		p.StatusInterval = Duration(30 * time.Minute)
	}
	if p.TickInterval == 0 {
		p.TickInterval = Duration(time.Minute)
	}
	if p.Entrez.StartYear == 0 {
		p.Entrez.StartYear = 2010
	}
	if p.Entrez.EndYear == 0 {
		p.Entrez.EndYear = time.Now().Year() + 1
	}
	if p.Entrez.APIKeyEnv == "" {
		p.Entrez.APIKeyEnv = "PUBMED_API_KEY"
	}
	if p.Web.Port == 0 {
		p.Web.Port = 8080
	}
	if p.Feeds.BaseURL == "" {
		p.Feeds.BaseURL = "https://f8ai.github.io/formulation-pubmed"
	}
	if p.Git.RepoDir == "" {
		p.Git.RepoDir = "."
	}
	if p.Git.Branch == "" {
		p.Git.Branch = "main"
	}
	if len(p.Categories) == 0 {
		p.Categories = defaultCategories
	}
}

// PostgresDSN resolves the Postgres connection string from the configured
// environment variable. Empty when unset.
func (p *Pipeline) PostgresDSN() string {
	return os.Getenv(p.PostgresDSNEnv)
}

// EntrezAPIKey resolves the API key from the configured environment
// variable. Empty when unset.
func (p *Pipeline) EntrezAPIKey() string {
	return os.Getenv(p.Entrez.APIKeyEnv)
}

// OcrAPIKey resolves the OCR service key from the configured environment
// variable. Empty when unset.
func (p *Pipeline) OcrAPIKey() string {
	if p.Ocr.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.Ocr.APIKeyEnv)
}
