// Package solver defines the boundary to the external geochemical solver and
// the adapters that reach it over a subprocess or gRPC.
package solver

import (
	"context"
	"fmt"

	"github.com/banshee-data/cavesweep/internal/settings"
)

// Adapter runs one configuration through the solver. Implementations block
// until the solver returns.
type Adapter interface {
	Run(ctx context.Context, cfg settings.Configuration) (RunResult, error)
}

// AdapterFunc adapts a function to Adapter.
type AdapterFunc func(ctx context.Context, cfg settings.Configuration) (RunResult, error)

// Run calls f.
func (f AdapterFunc) Run(ctx context.Context, cfg settings.Configuration) (RunResult, error) {
	return f(ctx, cfg)
}

// ExecutionError reports a failed solver run. It never aborts a batch.
type ExecutionError struct {
	Index       int
	Fingerprint string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("solver run %d failed: %v", e.Index, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Catalog maps precipitate mineralogy to a thermodynamic database name.
type Catalog map[string]string

// DefaultCatalog is used when no catalog is configured.
var DefaultCatalog = Catalog{
	"Calcite":   "oxotope.dat",
	"Aragonite": "oxotope_aragonite.dat",
}

// DatabaseFor returns the database a configuration should run against. An
// explicit non-empty "database" parameter wins, otherwise the catalog entry
// for "precipitate_mineralogy" is used.
func (c Catalog) DatabaseFor(cfg settings.Configuration) (string, error) {
	if db, ok := cfg.String("database"); ok && db != "" {
		return db, nil
	}
	if c == nil {
		c = DefaultCatalog
	}
	mineral, _ := cfg.String("precipitate_mineralogy")
	db, ok := c[mineral]
	if !ok {
		return "", fmt.Errorf("no database configured for mineralogy %q", mineral)
	}
	return db, nil
}

// Request is the payload every adapter sends to the solver.
type Request struct {
	Database string                 `json:"database"`
	Settings map[string]interface{} `json:"settings"`
}

func newRequest(catalog Catalog, cfg settings.Configuration) (Request, error) {
	db, err := catalog.DatabaseFor(cfg)
	if err != nil {
		return Request{}, err
	}
	return Request{Database: db, Settings: cfg.Map()}, nil
}
