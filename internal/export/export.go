// Package export produces audit snapshots and per-satellite statistics from
// the classification ledger.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// RecordExport is one ledger entry with its full verdict history attached.
type RecordExport struct {
	Transponder model.TransponderKey      `json:"transponder"`
	Verdict     model.Verdict             `json:"verdict"`
	Confidence  float64                   `json:"confidence"`
	Traffic     model.TrafficCategory     `json:"traffic_category"`
	Depth       model.AnalysisDepth       `json:"analysis_depth"`
	Evidence    int                       `json:"evidence_count"`
	Passes      int                       `json:"pass_count"`
	ContainsPII bool                      `json:"contains_pii"`
	FirstSeen   time.Time                 `json:"first_seen"`
	LastUpdated time.Time                 `json:"last_updated"`
	History     []model.VerdictTransition `json:"history,omitempty"`
}

// AuditSnapshot is the complete exportable state of the pipeline: every
// record, its append-only history, and all disclosure cases.
type AuditSnapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Records     []RecordExport         `json:"records"`
	Cases       []model.DisclosureCase `json:"disclosure_cases"`
}

// SatelliteStats aggregates classification outcomes for one satellite.
type SatelliteStats struct {
	Satellite        string  `json:"satellite"`
	Transponders     int     `json:"transponders"`
	Secure           int     `json:"secure"`
	Unencrypted      int     `json:"unencrypted"`
	Obfuscated       int     `json:"obfuscated"`
	FurtherAnalysis  int     `json:"further_analysis"`
	Unknown          int     `json:"unknown"`
	EncryptionRate   float64 `json:"encryption_rate"`
	PlaintextRate    float64 `json:"plaintext_rate"`
	PIIExposureCount int     `json:"pii_exposure_count"`
	OpenCases        int     `json:"open_cases"`
	ClosedCases      int     `json:"closed_cases"`
}

// StatisticsReport is the per-satellite rollup of the ledger.
type StatisticsReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Satellites  []SatelliteStats `json:"satellites"`
}

// Exporter reads the ledger and writes JSON reports.
type Exporter struct {
	storage service.Storage
}

// New creates an exporter.
func New(storage service.Storage) (*Exporter, error) {
	if storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	return &Exporter{storage: storage}, nil
}

// Snapshot assembles the full audit snapshot, history included.
func (e *Exporter) Snapshot(ctx context.Context) (*AuditSnapshot, error) {
	records, err := e.storage.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	exports := make([]RecordExport, 0, len(records))
	for i := range records {
		record := &records[i]
		history, err := e.storage.History(ctx, record.Key)
		if err != nil {
			return nil, fmt.Errorf("loading history for %s: %w", record.Key, err)
		}
		exports = append(exports, RecordExport{
			Transponder: record.Key,
			Verdict:     record.Verdict,
			Confidence:  record.Confidence,
			Traffic:     record.Traffic,
			Depth:       record.Depth,
			Evidence:    record.EvidenceCount,
			Passes:      record.PassCount,
			ContainsPII: record.ContainsPII,
			FirstSeen:   record.FirstSeen,
			LastUpdated: record.LastUpdated,
			History:     history,
		})
	}

	cases, err := e.storage.ListCases(ctx, service.CaseFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing disclosure cases: %w", err)
	}

	return &AuditSnapshot{
		GeneratedAt: time.Now().UTC(),
		Records:     exports,
		Cases:       cases,
	}, nil
}

// Statistics rolls the ledger up per satellite.
func (e *Exporter) Statistics(ctx context.Context) (*StatisticsReport, error) {
	records, err := e.storage.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	cases, err := e.storage.ListCases(ctx, service.CaseFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing disclosure cases: %w", err)
	}

	caseCounts := make(map[string][2]int) // satellite -> [open, closed]
	for i := range cases {
		counts := caseCounts[cases[i].Key.Satellite]
		if cases[i].Status.Closed() {
			counts[1]++
		} else {
			counts[0]++
		}
		caseCounts[cases[i].Key.Satellite] = counts
	}

	bySatellite := make(map[string]*SatelliteStats)
	order := make([]string, 0)
	for i := range records {
		record := &records[i]
		stats, ok := bySatellite[record.Key.Satellite]
		if !ok {
			stats = &SatelliteStats{Satellite: record.Key.Satellite}
			bySatellite[record.Key.Satellite] = stats
			order = append(order, record.Key.Satellite)
		}

		stats.Transponders++
		switch record.Verdict {
		case model.VerdictSecure:
			stats.Secure++
		case model.VerdictUnencrypted:
			stats.Unencrypted++
		case model.VerdictObfuscated:
			stats.Obfuscated++
		case model.VerdictFurtherAnalysis:
			stats.FurtherAnalysis++
		default:
			stats.Unknown++
		}
		if record.ContainsPII {
			stats.PIIExposureCount++
		}
	}

	satellites := make([]SatelliteStats, 0, len(order))
	for _, name := range order {
		stats := bySatellite[name]
		if stats.Transponders > 0 {
			stats.EncryptionRate = float64(stats.Secure) / float64(stats.Transponders)
			stats.PlaintextRate = float64(stats.Unencrypted) / float64(stats.Transponders)
		}
		counts := caseCounts[name]
		stats.OpenCases = counts[0]
		stats.ClosedCases = counts[1]
		satellites = append(satellites, *stats)
	}

	return &StatisticsReport{
		GeneratedAt: time.Now().UTC(),
		Satellites:  satellites,
	}, nil
}

// WriteSnapshot writes the audit snapshot as indented JSON.
func (e *Exporter) WriteSnapshot(ctx context.Context, w io.Writer) error {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, snapshot)
}

// WriteStatistics writes the statistics report as indented JSON.
func (e *Exporter) WriteStatistics(ctx context.Context, w io.Writer) error {
	report, err := e.Statistics(ctx)
	if err != nil {
		return err
	}
	return writeJSON(w, report)
}

// SnapshotToFile writes the audit snapshot to a file path.
func (e *Exporter) SnapshotToFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return e.WriteSnapshot(ctx, f)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
