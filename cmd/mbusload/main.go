// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mbusload pushes a configurable load through a source session
// over the in-process network and reports what came back.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"code.hybscloud.com/mbus"
	"code.hybscloud.com/mbus/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)
	root := &cobra.Command{
		Use:          "mbusload",
		Short:        "Message bus source session load generator",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error, off)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatConsole, "log format (console, json)")
	root.AddCommand(runCmd(&logLevel, &logFormat))
	return root
}

func runCmd(logLevel, logFormat *string) *cobra.Command {
	var (
		configPath string
		messages   int
		producers  int
		workers    int
		latency    time.Duration
		timeout    time.Duration
		policy     string
		maxPending int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send messages through one source session and wait for every reply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("mbusload", cmd.ErrOrStderr(), *logLevel, *logFormat)
			if err != nil {
				return err
			}
			cfg := defaultLoadConfig()
			if configPath != "" {
				if cfg, err = loadFileConfig(configPath); err != nil {
					return err
				}
			}
			flags := cmd.Flags()
			if flags.Changed("messages") {
				cfg.Messages = messages
			}
			if flags.Changed("producers") {
				cfg.Producers = producers
			}
			if flags.Changed("workers") {
				cfg.Workers = workers
			}
			if flags.Changed("latency") {
				cfg.Latency = latency
			}
			if flags.Changed("timeout") {
				cfg.Session.Timeout = timeout
			}
			if flags.Changed("policy") {
				cfg.Session.Throttle.Policy = strings.ToLower(strings.TrimSpace(policy))
			}
			if flags.Changed("max-pending") {
				cfg.Session.Throttle.MaxPendingCount = maxPending
			}
			if err := cfg.validate(); err != nil {
				return err
			}
			rep, err := runLoad(cmd.Context(), cfg, logger)
			rep.write(cmd.OutOrStdout())
			return err
		},
	}
	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "TOML config file")
	f.IntVarP(&messages, "messages", "n", 10000, "messages to send")
	f.IntVarP(&producers, "producers", "p", 4, "concurrent producer goroutines")
	f.IntVar(&workers, "workers", 4, "network delivery goroutines")
	f.DurationVar(&latency, "latency", 0, "simulated per-delivery latency")
	f.DurationVar(&timeout, "timeout", mbus.DefaultTimeout, "default message timeout")
	f.StringVar(&policy, "policy", mbus.PolicyDynamic, "throttle policy (unlimited, static, dynamic)")
	f.IntVar(&maxPending, "max-pending", 0, "pending message cap, 0 for none")
	return cmd
}
