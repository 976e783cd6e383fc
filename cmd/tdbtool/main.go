// Package main implements tdbtool, a command-line front end to the tdbkit
// embedded table database. It is a thin cobra wrapper over the internal/tdb
// package, intended for scripting and manual inspection of a database
// directory the way Tokyo Cabinet's own tcutest/tctmgr command-line tools
// let an operator poke at a table database from a shell.
//
// Subcommands:
//
//	open      - create/verify a database directory with given tuning
//	put       - write a record (over/keep/cat write modes)
//	get       - read a record's columns
//	out       - remove a record
//	query     - run a condition/order/limit search and print matching keys
//	optimize  - rebuild the hash store and every index tree
//	vanish    - remove every record
//	bench     - put N generated records and report how many were written
//
// A config file (-c/--config) in BurntSushi/toml format supplies default
// tuning flags; explicit flags on the command line override it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dreamware/tdbkit/internal/tlog"
)

var (
	flagVerbose bool
	flagConfig  string
)

func main() {
	root := &cobra.Command{
		Use:           "tdbtool",
		Short:         "Inspect and manipulate a tdbkit table database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger()
		},
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable development-mode structured logging")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a tdbtool.toml tuning defaults file")

	root.AddCommand(
		openCmd(),
		putCmd(),
		getCmd(),
		outCmd(),
		queryCmd(),
		optimizeCmd(),
		vanishCmd(),
		benchCmd(),
	)

	// SIGINT/SIGTERM cancel the command's context rather than killing the
	// process outright, so a long-running bench run closes its TDB handle
	// (flushing index buffers) instead of leaving a half-written database.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tdbtool:", err)
		os.Exit(1)
	}
}

func initLogger() error {
	if !flagVerbose {
		return nil
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	tlog.SetLogger(logger)
	return nil
}
