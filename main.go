package main

import (
	"context"
	"encoding/json"
	"fmt"
	"listing-hunter/pkg/config"
	"listing-hunter/pkg/logger"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hunter",
		Short:         "Watches second-hand catalogs and mails a digest of new listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default $HUNTER_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(runCmd(), consumeCmd(), serveCmd(), ticketsCmd(), sourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	registry := newRegistry(cfg, log)
	if err := cfg.Validate(registry.Names()); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return newApp(cfg, registry, log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <source>",
		Short: "Run the pipeline once for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			res, err := a.RunSource(ctx, args[0])
			out := runResponse(res, err)
			printJSON(out)
			return err
		},
	}
}

func consumeCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Mail queued digests until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			if workers <= 0 {
				workers = a.cfg.Consumer.Workers
			}
			a.logger.Info("consumer started", "workers", workers, "poll", a.cfg.Queue.PollInterval)
			return a.Consumer().Run(ctx, workers)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent workers (default consumer.workers)")
	return cmd
}

func serveCmd() *cobra.Command {
	var noCron bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			if !noCron {
				sched, err := a.Scheduler()
				if err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
				for name, next := range sched.Jobs() {
					a.logger.Info("job scheduled", "job", name, "next", next)
				}
			}
			return serve(ctx, a.cfg.HTTPAddr, newServer(a, a.logger), a.logger)
		},
	}
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "Only serve HTTP triggers")
	return cmd
}

func ticketsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tickets",
		Short: "Check the race-number exchange once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext()
			defer stop()

			status, err := a.CheckTickets(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(map[string]string{"status": status.String()})
			} else {
				fmt.Printf("tickets: %s\n", status)
			}
			return nil
		},
	}
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if jsonOutput {
				printJSON(cfg.Sources)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tADAPTER\tTABLE\tTERMS\tSCHEDULE")
			for _, s := range cfg.Sources {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Name, s.Adapter, s.Table, len(s.Terms), s.Schedule)
			}
			return w.Flush()
		},
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
