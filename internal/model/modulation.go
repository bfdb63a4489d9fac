package model

// ModulationScheme labels the transmission standard detected in a segment.
type ModulationScheme string

// Modulation scheme constants.
const (
	ModulationDVBS    ModulationScheme = "DVB-S"
	ModulationDVBS2   ModulationScheme = "DVB-S2"
	ModulationDVBS2X  ModulationScheme = "DVB-S2X"
	ModulationSCPC    ModulationScheme = "SCPC"
	ModulationMCPC    ModulationScheme = "MCPC"
	ModulationTDMA    ModulationScheme = "TDMA"
	ModulationUnknown ModulationScheme = "UNKNOWN"
)

// SignalFeatures is the measurable feature set the identifier computes per
// segment. Every classification decision is explainable from these values
// plus the matched rule.
type SignalFeatures struct {
	SymbolRateMSps     float64 `json:"symbol_rate_msps"`    // estimated symbol rate in megasymbols/s
	SpectralOccupancy  float64 `json:"spectral_occupancy"`  // fraction of the transponder bandwidth in use, [0,1]
	ConstellationOrder int     `json:"constellation_order"` // hinted constellation size (4 = QPSK, 8 = 8PSK, ...)
}

// ModulationResult is the immutable output of the Modulation Identifier for
// one segment. Produced once; never retried on failure.
type ModulationResult struct {
	SegmentID   string           `json:"segment_id"`
	Key         TransponderKey   `json:"key"`
	Scheme      ModulationScheme `json:"scheme"`
	MatchedRule string           `json:"matched_rule,omitempty"` // name of the rule that produced the label, empty for UNKNOWN
	Features    SignalFeatures   `json:"features"`
	Confidence  float64          `json:"confidence"`
}
