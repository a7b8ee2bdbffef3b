package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedStores = map[string]bool{
	"file":     true,
	"postgres": true,
}

// Validate checks a Config for structural and semantic errors. It returns a
// slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	p := cfg.Pipeline

	if !recognizedStores[p.Store] {
		errs = append(errs, ValidationError{
			Field:   "pipeline.store",
			Message: fmt.Sprintf("unknown store %q (want file or postgres)", p.Store),
		})
	}
	if p.Store == "postgres" && p.PostgresDSN() == "" {
		errs = append(errs, ValidationError{
			Field:   "pipeline.postgres_dsn_env",
			Message: fmt.Sprintf("environment variable %s is not set", p.PostgresDSNEnv),
		})
	}
	if p.Store == "file" && p.DataDir == "" {
		errs = append(errs, ValidationError{Field: "pipeline.data_dir", Message: "is required"})
	}
	if p.BlobDir == "" {
		errs = append(errs, ValidationError{Field: "pipeline.blob_dir", Message: "is required"})
	}
	if p.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "pipeline.max_attempts", Message: "must be at least 1"})
	}
	if p.LeaseTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "pipeline.lease_timeout", Message: "must be positive"})
	}
	if p.Entrez.StartYear > p.Entrez.EndYear {
		errs = append(errs, ValidationError{
			Field:   "pipeline.entrez",
			Message: fmt.Sprintf("start_year %d after end_year %d", p.Entrez.StartYear, p.Entrez.EndYear),
		})
	}
	if p.Web.Port < 0 || p.Web.Port > 65535 {
		errs = append(errs, ValidationError{Field: "pipeline.web.port", Message: "out of range"})
	}

	seen := make(map[string]bool)
	for i, c := range p.Categories {
		if c.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.categories[%d].name", i),
				Message: "is required",
			})
			continue
		}
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.categories[%d].name", i),
				Message: fmt.Sprintf("duplicate category %q", c.Name),
			})
		}
		seen[c.Name] = true
		if len(c.Terms) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("pipeline.categories[%d].terms", i),
				Message: "at least one search term is required",
			})
		}
	}
	return errs
}
