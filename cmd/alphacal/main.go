package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "alphacal",
		Short:         "Discover upcoming market events and track their hype",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(jobCmd())
	root.AddCommand(discoverCmd())
	root.AddCommand(hypeCmd())
	root.AddCommand(eventsCmd())

	return root
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with daily scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func jobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job",
		Short: "Run discovery and the hype cycle once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob()
		},
	}
}

func discoverCmd() *cobra.Command {
	var tickers []string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover new events from ticker news",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(tickers)
		},
	}

	cmd.Flags().StringSliceVar(&tickers, "ticker", nil, "specific tickers to scan (e.g., NVDA,삼성전자)")
	return cmd
}

func hypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hype",
		Short: "Recompute hype scores for open events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHype()
		},
	}
}

func eventsCmd() *cobra.Command {
	var (
		jsonOutput bool
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(jsonOutput, status, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PENDING, ACTIVE, FINISHED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to show")
	return cmd
}
