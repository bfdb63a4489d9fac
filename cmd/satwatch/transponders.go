package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/model"
)

func transpondersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transponders",
		Short: "List observed transponders and their classifications",
		RunE:  runTransponders,
	}

	cmd.Flags().String("verdict", "", "only show records with this verdict")
	cmd.AddCommand(historyCmd())

	return cmd
}

func runTransponders(cmd *cobra.Command, _ []string) error {
	verdictFilter, _ := cmd.Flags().GetString("verdict")
	ctx := cmd.Context()

	if verdictFilter != "" && !model.Verdict(verdictFilter).Valid() {
		return fmt.Errorf("invalid verdict: %s", verdictFilter)
	}

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListRecords(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SATELLITE\tFREQ (MHz)\tBW (MHz)\tVERDICT\tCONF\tTRAFFIC\tEVIDENCE\tPASSES\tPII")
	shown := 0
	for i := range records {
		record := &records[i]
		if verdictFilter != "" && string(record.Verdict) != verdictFilter {
			continue
		}

		pii := ""
		if record.ContainsPII {
			pii = "yes"
		}
		fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%s\t%.2f\t%s\t%d\t%d\t%s\n",
			record.Key.Satellite,
			record.Key.FrequencyMHz,
			record.Key.BandwidthMHz,
			record.Verdict,
			record.Confidence,
			record.Traffic,
			record.EvidenceCount,
			record.PassCount,
			pii)
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if shown == 0 {
		fmt.Fprintln(os.Stderr, "No matching transponders.")
	}
	return nil
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <satellite> <frequency-mhz> <bandwidth-mhz>",
		Short: "Show the verdict history of one transponder",
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

			history, err := store.History(ctx, key)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					fmt.Fprintln(os.Stderr, "No history for that transponder.")
					return nil
				}
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tFROM\tTO\tTRAFFIC\tCONF\tEVIDENCE\tSEGMENT")
			for i := range history {
				t := &history[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%d\t%s\n",
					t.OccurredAt.Format("2006-01-02 15:04:05"),
					t.From, t.To, t.Traffic, t.Confidence, t.EvidenceCount, t.SegmentID)
			}
			return w.Flush()
		},
	}
}

func parseKey(args []string) (model.TransponderKey, error) {
	var key model.TransponderKey
	key.Satellite = args[0]
	if _, err := fmt.Sscanf(args[1], "%f", &key.FrequencyMHz); err != nil {
		return key, fmt.Errorf("invalid frequency %q: %w", args[1], err)
	}
	if _, err := fmt.Sscanf(args[2], "%f", &key.BandwidthMHz); err != nil {
		return key, fmt.Errorf("invalid bandwidth %q: %w", args[2], err)
	}
	return key, nil
}
