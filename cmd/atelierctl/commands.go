package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jupiterclapton/atelier/config"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/security"
	"github.com/jupiterclapton/atelier/internal/adapters/secondary/telemetry"
	"github.com/jupiterclapton/atelier/internal/core/domain"
	"github.com/jupiterclapton/atelier/internal/core/services"
	"github.com/jupiterclapton/atelier/internal/platform"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "atelierctl",
		Short:         "Operational tools for the Atelier engagement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRepairCmd(), newTokenCmd())
	return root
}

func newRepairCmd() *cobra.Command {
	var (
		batchSize int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Normalize documents and restore follow-edge symmetry",
		Long: `Scans every person and artist, fills missing containers, removes self edges
and dangling references, then projects each subject-side edge onto its mirror.
Safe to run repeatedly: a second run on a repaired store changes nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			platform.InitLogger(cfg)
			if batchSize <= 0 {
				batchSize = cfg.RepairBatchSize
			}

			ctx := cmd.Context()
			store, err := platform.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			metrics := telemetry.NewMetrics(prometheus.NewRegistry())
			report, err := services.NewRepairService(store.Profiles, store.Journal, metrics, batchSize).RepairRelationships(ctx)
			if err != nil {
				return fmt.Errorf("repair failed: %w", err)
			}
			return printReport(cmd.OutOrStdout(), report, asJSON)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "documents per scan batch (default: REPAIR_BATCH_SIZE)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func printReport(w io.Writer, r *domain.RepairReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(w, "documents normalized: %d\nedges restored:       %d\nedges removed:        %d\nself edges removed:   %d\nflags resolved:       %d\n",
		r.DocumentsNormalized, r.EdgesRestored, r.EdgesRemoved, r.SelfEdgesRemoved, r.FlagsResolved)
	return err
}

func newTokenCmd() *cobra.Command {
	var (
		keyPath string
		userID  string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development access token with an RSA private key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pem, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			issuer, err := security.NewJWTIssuer(pem)
			if err != nil {
				return err
			}
			token, err := issuer.Issue(userID, role, ttl)
			if err != nil {
				return err
			}
			slog.Debug("token issued", "user_id", userID, "role", role, "ttl", ttl)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&keyPath, "key", "", "path to the RSA private key (PEM)")
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", "", `role claim, e.g. "admin"`)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
