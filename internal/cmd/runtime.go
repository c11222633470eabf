package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/agritutor/agritutor/internal/config"
	"github.com/agritutor/agritutor/internal/observability"
	"github.com/agritutor/agritutor/internal/output"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/store"
	"github.com/agritutor/agritutor/internal/tutor"
)

// logger returns the active logger, starting the CLI logger if nothing has
// yet.
func logger() *logging.Logger {
	if l := observability.Logger(); l != nil {
		return l
	}
	name := "agritutor"
	if identity := GetAppIdentity(); identity != nil {
		name = identity.BinaryName
	}
	observability.InitCLILogger(name, verbose)
	return observability.CLILogger
}

// loadCatalog opens catalog.path, or the embedded catalog when unset.
func loadCatalog(cfg *config.Config) (*prompt.Catalog, error) {
	path := ""
	if cfg != nil {
		path = strings.TrimSpace(cfg.Catalog.Path)
	}
	catalog, err := prompt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return catalog, nil
}

// tutorRuntime bundles what the ask and lesson commands need. The store is
// nil when caching is disabled or the database could not be opened.
type tutorRuntime struct {
	Config  *config.Config
	Catalog *prompt.Catalog
	Store   *store.Store
	Service *tutor.Service
}

func (r *tutorRuntime) Close() {
	if r == nil || r.Store == nil {
		return
	}
	_ = r.Store.Close()
}

func newTutorRuntime(ctx context.Context, useCache bool) (*tutorRuntime, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	rt := &tutorRuntime{Config: cfg, Catalog: catalog}
	rt.Service = newTutorService(cfg, catalog, nil)

	if useCache && cfg.Cache.TTL > 0 {
		db, err := openStore(ctx, cfg)
		if err != nil {
			logger().Warn("Response cache unavailable", zap.Error(err))
		} else {
			rt.Store = db
			rt.Service.Cache = db
			rt.Service.Limiter.Store = db
		}
	}
	return rt, nil
}

// newTutorService wires a tutor service from config. A nil cache leaves
// caching off. Rate limit state stays in memory until a store is attached.
func newTutorService(cfg *config.Config, catalog *prompt.Catalog, cache tutor.Cache) *tutor.Service {
	svc := &tutor.Service{
		Providers: tutor.NewRegistry(cfg.Tutor),
		Catalog:   catalog,
		CacheTTL:  cfg.Cache.TTL,
		Limiter:   tutor.NewRateLimiter(cfg.Tutor, nil),
		Logger:    logger(),
	}
	if cache != nil {
		svc.Cache = cache
	}
	return svc
}

func currentFormatter() (output.Formatter, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

// render writes rendered output followed by a newline.
func render(w io.Writer, rendered string, err error) error {
	if err != nil {
		return err
	}
	if rendered == "" {
		return nil
	}
	if !strings.HasSuffix(rendered, "\n") {
		rendered += "\n"
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// parseVars turns repeated KEY=VALUE flags into ordered values. Keys are
// trimmed of surrounding whitespace and values are kept verbatim; a later flag
// for the same key replaces the value but keeps the first position.
func parseVars(pairs []string) (prompt.Values, error) {
	var values prompt.Values
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return prompt.Values{}, fmt.Errorf("invalid --var %q: expected KEY=VALUE", pair)
		}
		values.Set(key, value)
	}
	return values, nil
}
