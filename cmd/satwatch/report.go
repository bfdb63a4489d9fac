package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elaichix/satwatch/internal/export"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export ledger reports",
		Long: `Export the classification ledger as JSON.

The audit snapshot includes every record with its full verdict history and
all disclosure cases. The stats report rolls outcomes up per satellite.`,
	}

	cmd.AddCommand(reportSnapshotCmd())
	cmd.AddCommand(reportStatsCmd())

	return cmd
}

func reportSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export the full audit snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			exporter, err := export.New(store)
			if err != nil {
				return err
			}

			if output != "" {
				if err := exporter.SnapshotToFile(ctx, output); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Snapshot written to %s\n", output)
				return nil
			}
			return exporter.WriteSnapshot(ctx, os.Stdout)
		},
	}

	cmd.Flags().StringP("output", "o", "", "write snapshot to a file instead of stdout")

	return cmd
}

func reportStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Export per-satellite statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			exporter, err := export.New(store)
			if err != nil {
				return err
			}
			return exporter.WriteStatistics(ctx, os.Stdout)
		},
	}
}
