package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "nanorpc",
		Short:         "Nano node RPC and WebSocket client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (YAML)")
	flags.StringVar(&ctx.envFileFlag, "env-file", ".env", "Environment file loaded before the configuration")
	flags.StringVar(&ctx.rpcURLFlag, "rpc-url", "", "Node RPC URL (overrides config)")
	flags.StringVar(&ctx.wsURLFlag, "ws-url", "", "Node WebSocket URL (overrides config)")
	flags.StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&ctx.metricsAddrFlag, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")

	rootCmd.AddCommand(newCallCommand(ctx))
	rootCmd.AddCommand(newListenCommand(ctx))
	rootCmd.AddCommand(newTopicsCommand())
	rootCmd.AddCommand(newEnvCommand())

	return rootCmd
}
