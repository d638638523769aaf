// Command proxy runs the gateway as a single long-lived process: load
// config, start the file watcher, bind the listener, serve until signalled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lkarlslund/claude-gateway/pkg/configcell"
	"github.com/lkarlslund/claude-gateway/pkg/gateway"
	"github.com/lkarlslund/claude-gateway/pkg/gwconfig"
	"github.com/lkarlslund/claude-gateway/pkg/logutil"
	"github.com/lkarlslund/claude-gateway/pkg/stats"
	"github.com/lkarlslund/claude-gateway/pkg/version"
	"github.com/lkarlslund/claude-gateway/pkg/watch"
)

const defaultListenAddr = "0.0.0.0:9066"

func main() {
	os.Exit(run())
}

// run returns the process exit code per §6: 0 normal termination, 2 config
// load failure at startup, 1 any other runtime failure.
func run() int {
	var (
		listenAddr     string
		autocertDomain string
		autocertCache  string
	)

	root := &cobra.Command{
		Use:           "proxy [config-path]",
		Short:         "Run the Claude-compatible proxy gateway",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVar(&listenAddr, "listen-addr", defaultListenAddr, "HTTP listen address")
	root.Flags().StringVar(&autocertDomain, "autocert-domain", "", "enable TLS via ACME autocert for this domain")
	root.Flags().StringVar(&autocertCache, "autocert-cache", "autocert-cache", "directory for cached ACME certificates")
	root.Version = version.String()

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, args []string) error {
		configPath := gwconfig.DefaultConfigPath()
		if len(args) == 1 {
			configPath = args[0]
		}

		if err := logutil.Configure(os.Getenv("LOG_LEVEL")); err != nil {
			exitCode = 2
			return fmt.Errorf("configure logging: %w", err)
		}
		logger := log.Default()
		logger.Info("starting", "version", version.String(), "config", configPath, "listen_addr", listenAddr)

		snap, err := gwconfig.Load(configPath)
		if err != nil {
			exitCode = 2
			return fmt.Errorf("load config: %w", err)
		}
		cell := configcell.New(snap)

		reloader, err := watch.New(configPath, cell)
		if err != nil {
			exitCode = 2
			return fmt.Errorf("start config watcher: %w", err)
		}
		go reloader.Run()
		defer reloader.Stop()

		registry := stats.New()
		server := gateway.NewServer(cell, registry, logger, gateway.Options{
			ListenAddr:     listenAddr,
			AutocertDomain: autocertDomain,
			AutocertCache:  autocertCache,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := server.Run(ctx); err != nil {
			exitCode = 1
			return fmt.Errorf("server run: %w", err)
		}
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if exitCode == 0 {
			exitCode = 1
		}
		return exitCode
	}
	return 0
}
