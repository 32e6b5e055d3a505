package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/quotabar/quotabar/internal/acquire"
	"github.com/quotabar/quotabar/internal/browser"
	"github.com/quotabar/quotabar/internal/cache"
	"github.com/quotabar/quotabar/internal/config"
	"github.com/quotabar/quotabar/internal/ratelimit"
	"github.com/quotabar/quotabar/internal/remote"
	"github.com/quotabar/quotabar/internal/sessionstore"
	"github.com/quotabar/quotabar/internal/version"
)

// app is the composition root: every stateful component is constructed once
// here and injected by reference, so nothing relies on package-level
// singletons.
type app struct {
	cfg      config.Config
	store    *sessionstore.Store
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	client   *remote.Client
	importer *browser.Importer
	orch     *acquire.Orchestrator
}

func newApp(cfg config.Config) *app {
	a := &app{
		cfg:      cfg,
		store:    sessionstore.New(),
		limiter:  ratelimit.New(ratelimit.DefaultMinInterval),
		client:   remote.NewClient(cfg.APIBaseURL),
		importer: browser.NewImporter(),
	}
	a.cache = cache.New(a.client.Fetch)

	a.orch = acquire.NewOrchestrator(a.store, a.cache,
		&acquire.Cached{Cache: a.cache},
		&acquire.ManualCredential{Cache: a.cache, Limiter: a.limiter},
		&acquire.StoredSession{Cache: a.cache, Store: a.store, Limiter: a.limiter},
		&acquire.CookieImport{
			Cache:    a.cache,
			Store:    a.store,
			Limiter:  a.limiter,
			Importer: a.importer,
			Browser:  cfg.CookieImport.Browser,
			Enabled:  func() bool { return a.cfg.CookieImport.Enabled },
		},
	)
	return a
}

func main() {
	if os.Getenv("QUOTABAR_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	a := newApp(cfg)

	root := cobra.Command{
		Use:     "quotabar",
		Short:   "quotabar shows your provider subscription usage from the terminal.",
		Version: version.String(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, a, statusFlags{})
		},
	}

	root.AddCommand(
		newStatusCmd(a),
		newWatchCmd(a),
		newSessionCmd(a),
		newImportCookiesCmd(a),
		newLimitsCmd(a),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
