// Package main is gymctl, a command line tool to inspect and maintain the
// local gymstats state: the pending sync queue, fatigue and charts.
// It opens the same storage as the service, so stop the service first when
// local storage is sqlite.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/2beens/gymsync/internal"
	"github.com/2beens/gymsync/internal/config"
	"github.com/2beens/gymsync/internal/gymstats/analytics"
	"github.com/2beens/gymsync/internal/gymstats/mutations"
	"github.com/2beens/gymsync/internal/gymstats/syncqueue"
	"github.com/2beens/gymsync/internal/logging"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// env is everything a command may need, opened once per invocation.
type env struct {
	engine     *mutations.Engine
	analyzer   *analytics.Analyzer
	reconciler *syncqueue.Reconciler
	close      func()
}

type openFunc func(ctx context.Context, envName, configPath string) (*env, error)

func main() {
	if err := newRootCmd(openEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func openEnv(ctx context.Context, envName, configPath string) (*env, error) {
	cfg, err := config.Load(envName, configPath)
	if err != nil {
		return nil, err
	}
	// commands work on the local snapshot only
	cfg.HydrateOnStart = false

	server, err := internal.NewServer(ctx, internal.NewServerParams{
		Config:        cfg,
		VersionInfo:   "gymctl",
		RedisPassword: os.Getenv("GYMSYNC_REDIS_PASS"),
		DBPassword:    os.Getenv("GYMSYNC_DB_PASS"),
	})
	if err != nil {
		return nil, fmt.Errorf("open gymstats: %w", err)
	}
	return &env{
		engine:     server.Engine(),
		analyzer:   server.Analyzer(),
		reconciler: server.Reconciler(),
		close:      server.GracefulShutdown,
	}, nil
}

// runner opens the environment for a command and closes it once the
// command returns.
type runner func(fn func(cmd *cobra.Command, args []string, e *env) error) func(cmd *cobra.Command, args []string) error

func newRootCmd(open openFunc) *cobra.Command {
	var (
		envName    string
		configPath string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "gymctl",
		Short:        "Inspect and maintain local gymstats state",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			log.SetLevel(logging.GetLevel(logLevel))
		},
	}
	root.PersistentFlags().StringVar(&envName, "env", "development", "environment [prod | production | dev | development]")
	root.PersistentFlags().StringVar(&configPath, "config", "./config.toml", "path for the TOML config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().Bool("json", false, "print JSON instead of tables")

	run := func(fn func(cmd *cobra.Command, args []string, e *env) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context(), envName, configPath)
			if err != nil {
				return err
			}
			if e.close != nil {
				defer e.close()
			}
			return fn(cmd, args, e)
		}
	}

	root.AddCommand(
		newQueueCmd(run),
		newSyncCmd(run),
		newFatigueCmd(run),
		newChartCmd(run),
		newCompactCmd(run),
		newDefinitionsCmd(run),
	)
	return root
}
