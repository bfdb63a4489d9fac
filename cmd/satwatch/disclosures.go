package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/elaichix/satwatch/internal/disclosure"
	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

func disclosuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disclosures",
		Short: "Manage responsible-disclosure cases",
	}

	cmd.AddCommand(disclosuresListCmd())
	cmd.AddCommand(disclosureTransitionCmd("notify", "Mark the open case as notified to the operator", model.CaseNotified))
	cmd.AddCommand(disclosureTransitionCmd("ack", "Mark the open case as acknowledged by the operator", model.CaseAcknowledged))
	cmd.AddCommand(disclosureTransitionCmd("remediate", "Close the open case as remediated", model.CaseRemediated))
	cmd.AddCommand(disclosuresSweepCmd())

	return cmd
}

func disclosuresListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List disclosure cases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statusFilter, _ := cmd.Flags().GetString("status")
			ctx := cmd.Context()

			if statusFilter != "" && !model.CaseStatus(statusFilter).Valid() {
				return fmt.Errorf("invalid case status: %s", statusFilter)
			}

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			cases, err := store.ListCases(ctx, service.CaseFilter{Status: model.CaseStatus(statusFilter)})
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				fmt.Fprintln(os.Stderr, "No disclosure cases.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CASE\tTRANSPONDER\tSTATUS\tCREATED\tNOTIFIED\tCLOSED")
			for i := range cases {
				c := &cases[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					c.ID,
					c.Key.String(),
					c.Status,
					c.CreatedAt.Format("2006-01-02"),
					formatDate(c.NotifiedAt),
					formatDate(c.ClosedAt))
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("status", "", "only show cases with this status")

	return cmd
}

func disclosureTransitionCmd(use, short string, to model.CaseStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <satellite> <frequency-mhz> <bandwidth-mhz>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker, err := disclosure.New(store, logNotifier{}, disclosure.DefaultConfig())
			if err != nil {
				return err
			}

			updated, err := tracker.Transition(ctx, key, to)
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Case %s is now %s\n", updated.ID, updated.Status)
			return nil
		},
	}
}

func disclosuresSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close unacknowledged cases past the response timeout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx := cmd.Context()

			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			tracker, err := disclosure.New(store, logNotifier{}, disclosure.Config{NoResponseTimeout: timeout})
			if err != nil {
				return err
			}

			closed, err := tracker.Sweep(ctx, time.Now().UTC())
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stdout, "Closed %d case(s) with no response\n", closed)
			return nil
		},
	}

	cmd.Flags().Duration("timeout", disclosure.DefaultConfig().NoResponseTimeout, "close cases unacknowledged for this long")

	return cmd
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}
