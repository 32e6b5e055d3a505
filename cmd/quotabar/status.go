package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/quotabar/quotabar/internal/appupdate"
	"github.com/quotabar/quotabar/internal/core"
	"github.com/quotabar/quotabar/internal/version"
)

var (
	labelStyle = lipgloss.NewStyle().Faint(true).Width(10)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	critStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

type statusFlags struct {
	refresh bool
	asJSON  bool
}

func newStatusCmd(a *app) *cobra.Command {
	var flags statusFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current usage snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, a, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.refresh, "refresh", false, "force a fresh fetch, ignoring the cache TTL")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "emit the snapshot as JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, a *app, flags statusFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap := a.orch.GetUsage(ctx, core.Request{Force: flags.refresh})

	if flags.asJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	printSnapshot(cmd, snap)
	printUpdateHint(ctx, cmd)
	return nil
}

func printSnapshot(cmd *cobra.Command, snap core.UsageSnapshot) {
	if snap.IsLoading {
		cmd.Println(dimStyle.Render("fetching usage..."))
		return
	}

	pctStyle := func(pct float64) lipgloss.Style {
		switch {
		case pct >= 95:
			return critStyle
		case pct >= 80:
			return warnStyle
		default:
			return okStyle
		}
	}

	row := func(label, value string) {
		cmd.Println(labelStyle.Render(label) + " " + value)
	}

	row("usage", pctStyle(snap.PrimaryPercent).Render(fmt.Sprintf("%.1f%%", snap.PrimaryPercent)))
	if snap.SecondaryPercent != nil {
		row("on-demand", pctStyle(*snap.SecondaryPercent).Render(fmt.Sprintf("%.1f%%", *snap.SecondaryPercent)))
	}
	if snap.TertiaryPercent != nil {
		row("account", pctStyle(*snap.TertiaryPercent).Render(fmt.Sprintf("%.1f%%", *snap.TertiaryPercent)))
	}
	if snap.CostUSD != nil {
		row("spend", fmt.Sprintf("$%.2f", *snap.CostUSD))
	}
	if snap.ResetAt != nil {
		row("resets", snap.ResetAt.Local().Format("Jan 02 15:04"))
	}
	if snap.PlanLabel != "" || snap.AccountEmail != "" {
		account := lo.Ternary(snap.AccountEmail != "", snap.AccountEmail, "(unknown account)")
		row("plan", dimStyle.Render(snap.PlanLabel+" "+account))
	}
	if !snap.FetchedAt.IsZero() {
		row("fetched", dimStyle.Render(snap.FetchedAt.Local().Format(time.Kitchen)))
	}

	if snap.Error != nil {
		cmd.Println(critStyle.Render(string(snap.Error.Kind)) + " " + snap.Error.Message)
		if snap.Error.Hint != "" {
			cmd.Println(dimStyle.Render(snap.Error.Hint))
		}
	}
}

// printUpdateHint is best effort on a tight budget; a slow or offline GitHub
// never delays the status output meaningfully.
func printUpdateHint(ctx context.Context, cmd *cobra.Command) {
	result, err := appupdate.Check(ctx, appupdate.CheckOptions{CurrentVersion: version.Version})
	if err != nil || !result.UpdateAvailable {
		return
	}
	cmd.Println(dimStyle.Render(fmt.Sprintf("update available: %s (%s)", result.LatestVersion, result.UpgradeHint)))
}
