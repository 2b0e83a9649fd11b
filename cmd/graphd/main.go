// Command graphd is the server and operator CLI for the graph workspace
// backend: it wires the Event Log, Projection Runner, Graph Materialization
// Store, Job Queue, and Session Protocol components into runnable
// subcommands (serve/migrate/append/worker), following the teacher's
// cmd/bd idiom of a single cobra root with one file per subcommand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "graphd",
	Short: "graphd - multi-tenant event-sourced graph workspace backend",
	Long:  `graphd is the event log, projector, job queue, and session server for a graph workspace backend.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a graphd.toml config file")
}

// signalContext returns a context canceled on SIGINT/SIGTERM, the way
// cmd/bd's main.go derives rootCtx in its PersistentPreRun.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
