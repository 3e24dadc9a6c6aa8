package preflight

import (
	"context"

	"autopublish/internal/config"
	"autopublish/internal/imagery"
	"autopublish/internal/publisher"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("State directory", cfg.Paths.StateDir)}

	// The local backend writes under the state directory, so only the HTTP
	// backend needs its own probe.
	if cfg.Publisher.Mode == config.PublisherModeHTTP {
		client := publisher.NewHTTP(cfg.Publisher.Endpoint, cfg.Publisher.APIKey, nil)
		results = append(results, CheckService(ctx, "Publisher", client))
	}

	if attacher := imagery.NewConfigured(cfg); attacher != nil {
		results = append(results, CheckService(ctx, "Imagery", attacher))
	}
	return results
}

// Failed filters results down to the failures.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
