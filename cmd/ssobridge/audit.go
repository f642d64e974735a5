package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otiai10/ssobridge/internal/audit"
	"github.com/otiai10/ssobridge/internal/config"
	"github.com/otiai10/ssobridge/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent exchanges recorded for a subject",
	Long: `Reads the Firestore audit trail written by the exchange and lists the
most recent entries for one user, newest first. Tokens are never recorded.

The audit project defaults to the auth project.`,
	Example: `  ssobridge audit --subject 8Fh2kQ... --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		limit, _ := cmd.Flags().GetInt("limit")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}

		fsCfg := auditStoreConfig(loadedConfig)
		fc, err := store.NewFirestoreClient(cmd.Context(), fsCfg)
		if err != nil {
			return fmt.Errorf("connecting to audit store: %w", err)
		}
		defer fc.Close()

		reader := audit.NewFirestoreRecorder(fc.Client(), auditCollection(loadedConfig))

		log.Debug().
			Str("project", fc.ProjectID()).
			Str("database", fc.Database()).
			Bool("emulator", fc.Emulated()).
			Str("subject", subject).
			Int("limit", limit).
			Msg("Fetching audit records...")
		records, err := reader.Recent(cmd.Context(), subject, limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			log.Info().Msg("No audit records found")
			return nil
		}
		log.Debug().Msgf("Retrieved %d audit record(s)", len(records))

		renderRecords(cmd.OutOrStdout(), records)
		return nil
	},
}

func auditStoreConfig(cfg *config.Config) store.FirestoreConfig {
	fsCfg := store.FirestoreConfig{
		ProjectID:   cfg.Audit.ProjectID,
		Database:    cfg.Audit.Database,
		Credentials: cfg.Audit.Credentials,
	}
	if fsCfg.ProjectID == "" {
		fsCfg.ProjectID = cfg.Auth.ProjectID
	}
	if fsCfg.Credentials == "" {
		fsCfg.Credentials = cfg.Auth.Credentials
	}
	return fsCfg
}

func auditCollection(cfg *config.Config) string {
	if cfg.Audit.Collection != "" {
		return cfg.Audit.Collection
	}
	return config.DefaultAuditCollection
}

func renderRecords(w io.Writer, records []audit.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{
		"Occurred", "Outcome", "Reason", "Provider", "Tenant", "Correlation",
	})

	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintfFunc()

	for _, rec := range records {
		outcome := string(rec.Outcome)
		if rec.Outcome != audit.OutcomeIssued {
			outcome = color.RedString(outcome)
		}
		t.AppendRow(table.Row{
			rec.OccurredAt.Local().Format(time.RFC3339),
			bold(outcome),
			faint(orDash(rec.Reason)),
			orDash(rec.ProviderID),
			orDash(rec.TenantID),
			faint(rec.CorrelationID),
		})
	}

	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	t.SetStyle(s)
	t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().String("subject", "", "user ID to list exchanges for")
	auditCmd.Flags().Int("limit", audit.DefaultLimit, "maximum number of records")
}
