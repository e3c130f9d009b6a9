/*
Copyright 2024 University of Stuttgart

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command qhana-plugin-registry runs the QHAna plugin registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gravitational/trace"
	"github.com/spf13/cobra"

	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/config"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/service"
	"github.com/UST-QuAntiL/qhana-plugin-registry/lib/storage/catalog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", trace.UserMessage(err))
		os.Exit(1)
	}
}

func run() error {
	var instanceDir string
	var debug bool

	root := &cobra.Command{
		Use:           "qhana-plugin-registry",
		Short:         "QHAna plugin registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&instanceDir, "instance", "",
		"folder searched for config.toml / config.json")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"enable debug logging")

	loadConfig := func() (*config.Config, *slog.Logger, error) {
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(log)
		cfg, err := config.Load(instanceDir)
		if err != nil {
			return nil, nil, trace.Wrap(err)
		}
		return cfg, log, nil
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the registry server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return trace.Wrap(err)
			}
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()
			registry, err := service.New(ctx, cfg, log)
			if err != nil {
				return trace.Wrap(err)
			}
			return trace.Wrap(registry.Run(ctx))
		},
	}

	db := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbInit := &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return trace.Wrap(err)
			}
			store, err := catalog.Open(cmd.Context(), catalog.Config{
				DatabaseURI: cfg.DatabaseURI,
				Log:         log,
			})
			if err != nil {
				return trace.Wrap(err)
			}
			defer store.Close()
			log.Info("database schema is up to date", "database", cfg.DatabaseURI)
			return nil
		},
	}
	db.AddCommand(dbInit)
	root.AddCommand(start, db)

	return trace.Wrap(root.Execute())
}
