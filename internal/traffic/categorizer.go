// Package traffic implements the traffic categorizer for transponders
// classified as unencrypted. Categorization consumes structural fingerprints
// only; decoded content is never inspected or persisted.
package traffic

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/elaichix/satwatch/internal/model"
	"github.com/elaichix/satwatch/internal/service"
)

// Config holds categorizer thresholds.
type Config struct {
	// MinConfidence is the floor below which a fingerprint is ignored
	// and the category left as-is (or UNKNOWN when unset).
	MinConfidence float64
}

// DefaultConfig returns the default categorizer configuration.
func DefaultConfig() Config {
	return Config{MinConfidence: 0.6}
}

// Categorizer assigns traffic-type labels from protocol and timing
// fingerprints. Pure and stateless; safe for concurrent use.
type Categorizer struct {
	fingerprinter service.TrafficFingerprinter
	config        Config
}

// New creates a categorizer.
func New(fingerprinter service.TrafficFingerprinter, config Config) (*Categorizer, error) {
	if fingerprinter == nil {
		return nil, fmt.Errorf("traffic fingerprinter is required")
	}
	if config.MinConfidence <= 0 {
		config.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Categorizer{
		fingerprinter: fingerprinter,
		config:        config,
	}, nil
}

// Categorize runs the fingerprint capability against a segment of an
// unencrypted transponder and returns the category the record should carry.
// It re-runs on every new evidence batch; a confident new fingerprint may
// revise an earlier category. Fingerprint failure leaves the current
// category untouched.
func (c *Categorizer) Categorize(ctx context.Context, record *model.ClassificationRecord, segment *model.CaptureSegment) (model.TrafficCategory, error) {
	if record.Verdict != model.VerdictUnencrypted {
		return record.Traffic, fmt.Errorf("categorizer requires an unencrypted record, got %s", record.Verdict)
	}

	current := record.Traffic
	if current == "" {
		current = model.TrafficUnknown
	}

	fingerprint, err := c.fingerprinter.Fingerprint(ctx, segment)
	if err != nil {
		return current, fmt.Errorf("traffic fingerprint for segment %s: %w", segment.ID, err)
	}
	if fingerprint == nil {
		slog.Debug("Fingerprinter returned no result",
			"segment_id", segment.ID,
			"transponder", segment.Key.String())
		return current, nil
	}

	if fingerprint.Confidence < c.config.MinConfidence {
		slog.Debug("Fingerprint below confidence floor",
			"category", fingerprint.Category,
			"confidence", fingerprint.Confidence,
			"segment_id", segment.ID)
		return current, nil
	}

	return fingerprint.Category, nil
}
