package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quotabar/quotabar/internal/core"
	"github.com/quotabar/quotabar/internal/sessionstore"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage the stored session credential",
	}
	cmd.AddCommand(newSessionSetCmd(a), newSessionShowCmd(a), newSessionClearCmd(a))
	return cmd
}

func newSessionSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set [credential]",
		Short: "Store a session credential (cookie-header string); reads stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var credential string
			if len(args) == 1 {
				credential = args[0]
			} else {
				cmd.Println("Paste the session credential and press enter:")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading credential: %w", err)
				}
				credential = line
			}
			credential = strings.TrimSpace(credential)
			if credential == "" {
				return errors.New("empty credential")
			}

			err := a.store.Set(core.Session{
				Credential:  credential,
				SourceLabel: "manual",
				StoredAt:    time.Now(),
			})
			if err != nil {
				return err
			}
			a.cache.Invalidate()
			cmd.Println("Session stored.")
			return nil
		},
	}
}

func newSessionShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print session metadata (never the credential itself)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.store.Get()
			if err != nil {
				return err
			}
			if sess == nil {
				cmd.Println("No session stored.")
				return nil
			}

			meta := a.store.Metadata()
			cmd.Printf("source:    %s\n", meta.SourceLabel)
			if !meta.StoredAt.IsZero() {
				cmd.Printf("stored at: %s\n", meta.StoredAt.Local().Format(time.RFC1123))
			}
			if meta.AccountHint != "" {
				cmd.Printf("account:   %s\n", meta.AccountHint)
			}

			switch err := a.store.Validate(); {
			case errors.Is(err, sessionstore.ErrIntegrity):
				cmd.Println(critStyle.Render("integrity: FAILED — re-authentication required"))
			case err != nil:
				cmd.Printf("integrity: unverifiable (%v)\n", err)
			default:
				cmd.Println("integrity: ok")
			}
			return nil
		},
	}
}

func newSessionClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored session and cached usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.Clear(); err != nil {
				return err
			}
			a.cache.Invalidate()
			cmd.Println("Session cleared.")
			return nil
		},
	}
}
