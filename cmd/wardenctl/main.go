// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

// Command wardenctl is the offline companion to the Warden server. It
// generates synthetic activity corpora, trains and evaluates isolation forest
// models from CSV, scores CSV rows against a stored model and issues API
// tokens.
//
//	wardenctl generate --normal 1000 --anomalous 50 --out data.csv
//	wardenctl evaluate --in data.csv --folds 5
//	wardenctl train --in data.csv --model-dir /data/models
//	wardenctl score --in data.csv --model-dir /data/models
//	wardenctl token --principal ops-1 --role security_auditor
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/warden/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "wardenctl",
		Short:         "Offline model and token tooling for Warden",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logging.Init(logging.Config{
				Level:  logLevel,
				Format: "console",
				Output: os.Stderr,
			})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newGenerateCmd(),
		newTrainCmd(),
		newEvaluateCmd(),
		newScoreCmd(),
		newTokenCmd(),
	)
	return root
}
