package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/elaichix/satwatch/internal/classifier"
	"github.com/elaichix/satwatch/internal/common"
	"github.com/elaichix/satwatch/internal/disclosure"
	"github.com/elaichix/satwatch/internal/engine"
	"github.com/elaichix/satwatch/internal/ingest"
	"github.com/elaichix/satwatch/internal/modulation"
	"github.com/elaichix/satwatch/internal/observability"
	"github.com/elaichix/satwatch/internal/traffic"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a capture manifest through the classification pipeline",
		Long: `Fold the segments of a capture manifest into the classification ledger.

The manifest is a JSON Lines file produced by the capture system: one entry
per segment, carrying the segment metadata plus whatever signal features,
payload probes, and traffic fingerprints were measured for it. Processing is
idempotent; re-running the same manifest changes nothing.`,
		RunE: runProcess,
	}

	cmd.Flags().StringP("input", "i", "", "capture manifest file (JSON Lines)")
	cmd.Flags().Int("workers", engine.DefaultConfig().Workers, "number of pipeline workers")
	cmd.Flags().Float64("quality-floor", ingest.DefaultConfig().QualityFloor, "reject segments below this quality score")
	cmd.Flags().Duration("min-duration", ingest.DefaultConfig().MinDuration, "reject segments shorter than this")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	input, _ := cmd.Flags().GetString("input")
	workers, _ := cmd.Flags().GetInt("workers")
	qualityFloor, _ := cmd.Flags().GetFloat64("quality-floor")
	minDuration, _ := cmd.Flags().GetDuration("min-duration")

	ctx := cmd.Context()

	manifest, err := ingest.LoadManifest(input)
	if err != nil {
		return err
	}
	if manifest.Len() == 0 {
		slog.Info("Manifest contains no segments", "input", input)
		return nil
	}
	slog.Info("Loaded capture manifest", "input", input, "segments", manifest.Len())

	store, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	metrics, err := observability.NewPipelineCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	identifier, err := modulation.New(manifest)
	if err != nil {
		return err
	}
	categorizer, err := traffic.New(manifest, traffic.DefaultConfig())
	if err != nil {
		return err
	}
	tracker, err := disclosure.New(store, logNotifier{}, disclosure.DefaultConfig())
	if err != nil {
		return err
	}

	ingestConfig := ingest.DefaultConfig()
	ingestConfig.QualityFloor = qualityFloor
	ingestConfig.MinDuration = minDuration
	ingestor, err := ingest.New(store, metrics, ingestConfig)
	if err != nil {
		return err
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.Workers = workers
	pipeline, err := engine.NewWithConfig(store, identifier, manifest, classifier.New(classifier.DefaultConfig()), categorizer, tracker, metrics, engineConfig)
	if err != nil {
		return err
	}

	bar := newProcessBar(manifest.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer ingestor.Close()
		for {
			segment, err := manifest.Next(ctx)
			if err != nil {
				return nil
			}
			if err := ingestor.Submit(ctx, segment); err != nil && !common.IsRejection(err) {
				return err
			}
			_ = bar.Add(1)
		}
	})
	g.Go(func() error {
		_, err := pipeline.Run(ctx, ingestor.Segments())
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	stats := pipeline.Stats()
	slog.Info("Processing complete",
		"segments_seen", stats.SegmentsSeen,
		"segments_folded", stats.SegmentsFolded,
		"segments_rejected", stats.SegmentsRejected,
		"duplicates", stats.Duplicates,
		"cases_opened", stats.CasesOpened,
		"duration", stats.Duration.Round(time.Millisecond))

	return nil
}

func newProcessBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Folding segments...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)
}
