package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/nuam-ingest/internal/domain/auth"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/repository"
	"github.com/FACorreiaa/nuam-ingest/internal/domain/ingest/service"
	"github.com/FACorreiaa/nuam-ingest/pkg/config"
)

func newCSVCmd(opts *globalOptions) *cobra.Command {
	var kind string
	var rowErrors bool

	cmd := &cobra.Command{
		Use:   "csv FILE",
		Short: "Run a CSV or XLSX file as one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			rt, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			result, err := rt.svc.ProcessCSV(ctx, rt.p, service.CSVUpload{
				Kind:             repository.RecordKind(kind),
				SourceName:       filepath.Base(args[0]),
				Data:             data,
				IncludeRowErrors: rowErrors,
			})
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(repository.KindAmounts), "record kind (factors|amounts|qualifications)")
	cmd.Flags().BoolVar(&rowErrors, "row-errors", true, "include failed rows in the output")
	return cmd
}

func newPDFCmd(opts *globalOptions) *cobra.Command {
	var confirmAll bool

	cmd := &cobra.Command{
		Use:   "pdf FILE",
		Short: "Extract candidates from a PDF and optionally confirm them all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			rt, err := opts.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.cleanup()

			preview, err := rt.svc.ExtractPDF(ctx, rt.p, filepath.Base(args[0]), data)
			if err != nil {
				return err
			}
			if !confirmAll {
				return printJSON(cmd.OutOrStdout(), preview)
			}

			result, err := rt.svc.ConfirmPreview(ctx, rt.p, preview.ID, service.IncludeAll(preview))
			if result != nil {
				if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&confirmAll, "confirm-all", false, "persist every candidate selected by default")
	return cmd
}

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --user and --role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := opts.principal()
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).Issue(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from JWT_TTL)")
	return cmd
}
