package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/x402labs/facilitator/internal/config"
)

func newConfigCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect facilitator configuration",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Load configuration and report any validation errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if configDir != "" {
				paths = []string{configDir}
			}
			cfg, err := config.Load(paths...)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: environment=%s networks=%d port=%d\n",
				cfg.Environment, len(cfg.Networks), cfg.Server.Port)
			for name, n := range cfg.Networks {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s: rpc=%s signers=%d routers=%d\n",
					name, n.RPCURL, len(n.SignerKeys), len(n.Routers))
			}
			return nil
		},
	}
	check.Flags().StringVar(&configDir, "config-dir", "", "directory containing x402fd.yaml (defaults to cwd)")
	cmd.AddCommand(check)

	return cmd
}
