package main

import (
	"github.com/spf13/cobra"
)

// Execute builds and runs the root command tree.
func Execute(version string) error {
	root := newRootCmd(version)
	return root.Execute()
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "gatewayd",
		Short:   "Resilient HTTP gateway for an append-only event broker",
		Version: version,
		Long: `gatewayd fronts an append-only log/message broker with a
resilience core: a supervised connection with bounded exponential
backoff reconnect, a circuit breaker gating every broker operation, a
per-client token-bucket rate limiter, and CIDR-aware caller identity
extraction for trusted-proxy deployments.`,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newHealthcheckCmd())

	return root
}
