// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/anomaly"
	"github.com/tomtom215/warden/internal/auth"
	"github.com/tomtom215/warden/internal/config"
	"github.com/tomtom215/warden/internal/database"
	"github.com/tomtom215/warden/internal/logging"
	"github.com/tomtom215/warden/internal/modelstore"
	"github.com/tomtom215/warden/internal/response"
	"github.com/tomtom215/warden/internal/scan"
	"github.com/tomtom215/warden/internal/training"
)

const defaultKind = "isolation_forest"

func newGenerateCmd() *cobra.Command {
	var (
		normal, anomalous, principals int
		seed                          int64
		out                           string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a synthetic labeled activity corpus as CSV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			samples := training.GenerateDataset(rand.New(rand.NewSource(seed)), normal, anomalous, principals) //nolint:gosec // reproducible corpus

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out) //nolint:gosec // path comes from the operator
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := writeSamples(w, samples); err != nil {
				return fmt.Errorf("write corpus: %w", err)
			}
			logging.Info().Int("normal", normal).Int("anomalous", anomalous).Str("out", out).Msg("Corpus generated")
			return nil
		},
	}
	cmd.Flags().IntVar(&normal, "normal", 1000, "number of normal rows")
	cmd.Flags().IntVar(&anomalous, "anomalous", 50, "number of anomalous rows")
	cmd.Flags().IntVar(&principals, "principals", 50, "number of distinct principals")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

// modelFlags are shared by the commands that fit or load a model.
type modelFlags struct {
	dir     string
	backend string
	kind    string
	params  anomaly.Params
}

func (f *modelFlags) register(cmd *cobra.Command, withParams bool) {
	cmd.Flags().StringVar(&f.dir, "model-dir", "/data/models", "model store directory")
	cmd.Flags().StringVar(&f.backend, "backend", "file", "model store backend (file or badger)")
	cmd.Flags().StringVar(&f.kind, "kind", defaultKind, "model kind")
	if withParams {
		d := anomaly.DefaultParams()
		cmd.Flags().IntVar(&f.params.Trees, "trees", d.Trees, "number of isolation trees")
		cmd.Flags().IntVar(&f.params.MaxSamples, "max-samples", d.MaxSamples, "subsample size per tree")
		cmd.Flags().Float64Var(&f.params.Contamination, "contamination", d.Contamination, "expected anomaly share, sets the threshold")
		cmd.Flags().Int64Var(&f.params.Seed, "seed", d.Seed, "random seed")
	}
}

func (f *modelFlags) open(ctx context.Context) (*modelstore.Store, error) {
	var (
		backend modelstore.Backend
		err     error
	)
	switch f.backend {
	case "file":
		backend, err = modelstore.NewFileBackend(f.dir)
	case "badger":
		backend, err = modelstore.OpenBadgerBackend(f.dir)
	default:
		return nil, fmt.Errorf("unknown backend %q", f.backend)
	}
	if err != nil {
		return nil, err
	}
	store, err := modelstore.NewStore(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}

func newTrainCmd() *cobra.Command {
	var (
		mf        modelFlags
		in        string
		dbPath    string
		keep      int
		allRows   bool
		modelName string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a model on a CSV corpus and save it to the model store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ds, err := readSamplesFile(in)
			if err != nil {
				return err
			}
			rows := ds.normal()
			if allRows {
				rows = ds.vectors
			}

			m, err := anomaly.Train(rows, mf.params)
			if err != nil {
				return err
			}

			store, err := mf.open(ctx)
			if err != nil {
				return fmt.Errorf("open model store: %w", err)
			}
			defer store.Close()

			meta, err := store.Save(ctx, mf.kind, m)
			if err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			if keep > 0 {
				if _, err := store.Prune(ctx, mf.kind, keep); err != nil {
					logging.Warn().Err(err).Msg("Failed to prune old model versions")
				}
			}

			if dbPath != "" {
				if err := activate(ctx, dbPath, modelstore.ConfigFromMeta(modelName, mf.params, meta)); err != nil {
					return fmt.Errorf("activate model: %w", err)
				}
			}

			logging.Info().
				Str("key", meta.Key).
				Int("samples", meta.SampleCount).
				Float64("threshold", meta.Threshold).
				Bool("activated", dbPath != "").
				Msg("Model saved")
			return printJSON(cmd.OutOrStdout(), meta)
		},
	}
	mf.register(cmd, true)
	cmd.Flags().StringVarP(&in, "in", "i", "", "input CSV corpus")
	cmd.Flags().StringVar(&dbPath, "db", "", "DuckDB path; when set the new model becomes the active one")
	cmd.Flags().IntVar(&keep, "keep", 5, "model versions to keep, 0 keeps all")
	cmd.Flags().BoolVar(&allRows, "all", false, "train on every row, including labeled anomalies")
	cmd.Flags().StringVar(&modelName, "name", "Isolation Forest - Anomaly Detection", "display name of the active config")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func activate(ctx context.Context, path string, ac modelstore.ActiveConfig) error {
	db, err := database.New(&config.DatabaseConfig{Path: path})
	if err != nil {
		return err
	}
	defer db.Close()

	configs := modelstore.NewConfigStore(db.Conn())
	if err := configs.InitSchema(ctx); err != nil {
		return err
	}
	return configs.Activate(ctx, &ac)
}

func newEvaluateCmd() *cobra.Command {
	var (
		mf    modelFlags
		in    string
		folds int
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate model parameters on a CSV corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ds, err := readSamplesFile(in)
			if err != nil {
				return err
			}
			if ds.labels == nil {
				logging.Warn().Msg("Corpus has no anomaly column, metrics measure self-consistency only")
			}
			trainer := training.NewTrainer(mf.params, 0, training.RunConfig{Kind: mf.kind}, training.Deps{})
			m, err := trainer.Evaluate(ds.vectors, ds.labels, folds)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
	mf.register(cmd, true)
	cmd.Flags().StringVarP(&in, "in", "i", "", "input CSV corpus")
	cmd.Flags().IntVar(&folds, "folds", training.DefaultFolds, "cross-validation folds")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// scoredRow is one line of score output.
type scoredRow struct {
	Principal  string        `json:"principal"`
	Score      float64       `json:"score"`
	Normalized float64       `json:"normalized"`
	Anomaly    bool          `json:"anomaly"`
	Band       response.Band `json:"band"`
}

func newScoreCmd() *cobra.Command {
	var (
		mf          modelFlags
		in          string
		onlyFlagged bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score CSV rows with the latest stored model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ds, err := readSamplesFile(in)
			if err != nil {
				return err
			}

			store, err := mf.open(ctx)
			if err != nil {
				return fmt.Errorf("open model store: %w", err)
			}
			defer store.Close()

			m, meta, err := store.LoadLatest(ctx, mf.kind)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			scores, err := m.ScoreAll(ds.vectors)
			if err != nil {
				return err
			}

			bands := response.DefaultBands()
			enc := json.NewEncoder(cmd.OutOrStdout())
			flagged := 0
			for i, s := range scores {
				row := scoredRow{
					Principal:  ds.principals[i],
					Score:      s,
					Normalized: scan.Normalize(s, m.Threshold, m.Ceiling, bands),
					Anomaly:    s >= m.Threshold,
				}
				row.Band = bands.Classify(row.Normalized)
				if row.Anomaly {
					flagged++
				} else if onlyFlagged {
					continue
				}
				if err := enc.Encode(row); err != nil {
					return err
				}
			}
			logging.Info().Str("model", meta.Key).Int("rows", len(scores)).Int("flagged", flagged).Msg("Scoring complete")
			return nil
		},
	}
	mf.register(cmd, false)
	cmd.Flags().StringVarP(&in, "in", "i", "", "input CSV corpus")
	cmd.Flags().BoolVar(&onlyFlagged, "flagged", false, "print only rows at or above the threshold")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		principal string
		email     string
		roles     []string
		secret    string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sec := config.SecurityConfig{JWTSecret: secret, TokenTTL: ttl}
			if sec.JWTSecret == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("load configuration: %w", err)
				}
				sec.JWTSecret = cfg.Security.JWTSecret
				if sec.TokenTTL <= 0 {
					sec.TokenTTL = cfg.Security.TokenTTL
				}
			}
			mgr, err := auth.NewJWTManager(&sec)
			if errors.Is(err, auth.ErrEmptySecret) {
				return errors.New("no signing secret: pass --secret or set JWT_SECRET")
			}
			if err != nil {
				return err
			}
			token, err := mgr.GenerateToken(principal, email, roles)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&principal, "principal", "", "principal id (token subject)")
	cmd.Flags().StringVar(&email, "email", "", "principal email")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"viewer"}, "role, repeatable")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret, defaults to JWT_SECRET")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, defaults to the configured TTL")
	_ = cmd.MarkFlagRequired("principal")
	return cmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
