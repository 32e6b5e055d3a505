package main

import (
	"github.com/spf13/cobra"

	"github.com/quotabar/quotabar/internal/acquire"
	"github.com/quotabar/quotabar/internal/core"
)

func newImportCookiesCmd(a *app) *cobra.Command {
	var browserName string
	cmd := &cobra.Command{
		Use:   "import-cookies",
		Short: "Import a session from a browser cookie store",
		Long: `Import a session from an installed browser's cookie store.

This reads and decrypts the browser's on-disk cookie database. Running it
explicitly works regardless of the cookie_import.enabled setting; the setting
only gates the automatic fallback in the acquisition chain.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategy := &acquire.CookieImport{
				Cache:    a.cache,
				Store:    a.store,
				Limiter:  a.limiter,
				Importer: a.importer,
				Browser:  browserName,
				Enabled:  func() bool { return true },
			}

			snap := strategy.Execute(cmd.Context(), core.Request{Force: true})
			printSnapshot(cmd, snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&browserName, "browser", a.cfg.CookieImport.Browser,
		"browser to import from (chrome, chromium, edge, brave, firefox, or any kooky-supported name)")
	return cmd
}
