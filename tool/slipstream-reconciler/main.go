/*
 * Slipstream
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gravitational/trace"

	"github.com/gravitational/slipstream/lib/cloud/awsconfig"
	"github.com/gravitational/slipstream/lib/defaults"
	"github.com/gravitational/slipstream/lib/reconcile"
	"github.com/gravitational/slipstream/lib/store"
)

const appHelp = `Slipstream Deployment Reconciler

The reconciler keeps stored distribution records in line with the
deployment status CloudFront reports. It periodically sweeps the
distributions table for records that are still converging, persists
every observed status transition, and records a history entry for it.

Configuration is read from flags or the SLIPSTREAM_* environment
variables listed in the flag descriptions.`

const (
	// regionEnvVar sets the AWS region of the control plane.
	regionEnvVar = "SLIPSTREAM_REGION"
	// debugEnvVar enables verbose logging.
	debugEnvVar = "SLIPSTREAM_DEBUG"
	// logFormatEnvVar sets the log output format.
	logFormatEnvVar = "SLIPSTREAM_LOG_FORMAT"
	// distributionsTableEnvVar sets the distributions table name.
	distributionsTableEnvVar = "SLIPSTREAM_DISTRIBUTIONS_TABLE"
	// historyTableEnvVar sets the change history table name.
	historyTableEnvVar = "SLIPSTREAM_HISTORY_TABLE"
	// scanIntervalEnvVar sets the cadence of the pending record sweep.
	scanIntervalEnvVar = "SLIPSTREAM_SCAN_INTERVAL"
	// assumeRoleEnvVar sets an optional IAM role to assume.
	assumeRoleEnvVar = "SLIPSTREAM_ASSUME_ROLE_ARN"
	// externalIDEnvVar sets the external ID of the assumed role.
	externalIDEnvVar = "SLIPSTREAM_EXTERNAL_ID"
)

const (
	logFormatText = "text"
	logFormatJSON = "json"
)

func main() {
	if err := Run(os.Args[1:]); err != nil {
		slog.ErrorContext(context.Background(), "Reconciler exited.", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	// Debug logs enabled
	Debug bool
	// LogFormat controls the format of logging. Can be either `json` or `text`.
	LogFormat string
	// Region of the control plane tables.
	Region string
	// DistributionsTable holds the distribution records.
	DistributionsTable string
	// HistoryTable holds the change history.
	HistoryTable string
	// ScanInterval is the cadence of the pending record sweep.
	ScanInterval time.Duration
	// AssumeRoleARN is an optional IAM role assumed for all AWS calls.
	AssumeRoleARN string
	// ExternalID of the assumed role.
	ExternalID string
}

func Run(args []string) error {
	var ccfg cliConfig
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := kingpin.New("slipstream-reconciler", appHelp)
	app.Flag("debug", "Verbose logging to stderr.").
		Short('d').Envar(debugEnvVar).BoolVar(&ccfg.Debug)
	app.Flag("log-format", "Controls the format of output logs. Can be `json` or `text`. Defaults to `text`.").
		Default(logFormatText).Envar(logFormatEnvVar).EnumVar(&ccfg.LogFormat, logFormatJSON, logFormatText)
	app.Flag("region", "AWS region of the control plane tables.").
		Default(defaults.ControlPlaneRegion).Envar(regionEnvVar).StringVar(&ccfg.Region)
	app.Flag("distributions-table", "DynamoDB table holding the distribution records.").
		Default(defaults.DistributionsTable).Envar(distributionsTableEnvVar).StringVar(&ccfg.DistributionsTable)
	app.Flag("history-table", "DynamoDB table holding the change history.").
		Default(defaults.HistoryTable).Envar(historyTableEnvVar).StringVar(&ccfg.HistoryTable)
	app.Flag("scan-interval", "Cadence of the pending distribution sweep.").
		Default(defaults.ReconcileInterval.String()).Envar(scanIntervalEnvVar).DurationVar(&ccfg.ScanInterval)
	app.Flag("assume-role-arn", "Optional IAM role to assume for all AWS calls.").
		Envar(assumeRoleEnvVar).StringVar(&ccfg.AssumeRoleARN)
	app.Flag("external-id", "External ID passed when assuming the role.").
		Envar(externalIDEnvVar).StringVar(&ccfg.ExternalID)
	app.HelpFlag.Short('h')

	if _, err := app.Parse(args); err != nil {
		app.Usage(args)
		return trace.Wrap(err)
	}

	// Logging must be configured as early as possible to ensure all log
	// messages are formatted correctly.
	if err := setupLog(ccfg.LogFormat, ccfg.Debug); err != nil {
		return trace.Wrap(err)
	}

	var opts []awsconfig.OptionsFn
	if ccfg.AssumeRoleARN != "" {
		opts = append(opts, awsconfig.WithAssumeRole(ccfg.AssumeRoleARN, ccfg.ExternalID))
	}
	awsCfg, err := awsconfig.GetConfig(ctx, ccfg.Region, opts...)
	if err != nil {
		return trace.Wrap(err)
	}

	st, err := store.New(store.Config{
		Client:             store.NewDynamoClient(awsCfg),
		DistributionsTable: ccfg.DistributionsTable,
		HistoryTable:       ccfg.HistoryTable,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	reconciler, err := reconcile.NewService(reconcile.Config{
		CloudFront:   reconcile.NewCloudFrontClient(awsCfg),
		Store:        st,
		ScanInterval: ccfg.ScanInterval,
	})
	if err != nil {
		return trace.Wrap(err)
	}

	return trace.Wrap(reconciler.Run(ctx))
}

func setupLog(format string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case logFormatText, "":
		handler = slog.NewTextHandler(os.Stderr, hopts)
	case logFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	default:
		return trace.BadParameter("unsupported log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
