package modulation

import "github.com/elaichix/satwatch/internal/model"

// DefaultRules returns the default modulation rule set.
//
// Each rule maps a window of measurable signal features to a scheme label
// with an explicit base confidence, so every verdict is explainable from the
// matched rule and the feature values. Windows reflect commonly observed
// Ku-band carrier profiles:
//
//   - DVB-S2X: very high symbol rates with dense constellations (16APSK+).
//   - DVB-S2: wide carriers, high occupancy, QPSK/8PSK, 20-45 MSps.
//   - DVB-S: wide carriers at QPSK only, legacy 15-30 MSps range.
//   - SCPC: single carrier well below transponder bandwidth, low occupancy.
//   - MCPC: multiplexed carriers filling most of the transponder.
//   - TDMA: bursty carriers; low occupancy with moderate symbol rates.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "dvb-s2x-highrate",
			Scheme:   model.ModulationDVBS2X,
			Priority: 100,
			Match: FeatureWindow{
				MinSymbolRateMSps:     30,
				MaxSymbolRateMSps:     72,
				MinOccupancy:          0.70,
				MinConstellationOrder: 16,
			},
			Confidence: 0.90,
		},
		{
			Name:     "dvb-s2-wideband",
			Scheme:   model.ModulationDVBS2,
			Priority: 90,
			Match: FeatureWindow{
				MinSymbolRateMSps:     20,
				MaxSymbolRateMSps:     45,
				MinOccupancy:          0.60,
				MinConstellationOrder: 4,
				MaxConstellationOrder: 8,
			},
			Confidence: 0.85,
		},
		{
			Name:     "dvb-s-legacy",
			Scheme:   model.ModulationDVBS,
			Priority: 80,
			Match: FeatureWindow{
				MinSymbolRateMSps:     15,
				MaxSymbolRateMSps:     30,
				MinOccupancy:          0.55,
				MinConstellationOrder: 4,
				MaxConstellationOrder: 4,
			},
			Confidence: 0.80,
		},
		{
			Name:     "scpc-narrow",
			Scheme:   model.ModulationSCPC,
			Priority: 70,
			Match: FeatureWindow{
				MinSymbolRateMSps: 0.1,
				MaxSymbolRateMSps: 10,
				MaxOccupancy:      0.35,
			},
			Confidence: 0.75,
		},
		{
			Name:     "mcpc-multiplex",
			Scheme:   model.ModulationMCPC,
			Priority: 60,
			Match: FeatureWindow{
				MinSymbolRateMSps: 2,
				MaxSymbolRateMSps: 20,
				MinOccupancy:      0.60,
			},
			Confidence: 0.70,
		},
		{
			Name:     "tdma-burst",
			Scheme:   model.ModulationTDMA,
			Priority: 50,
			Match: FeatureWindow{
				MinSymbolRateMSps: 1,
				MaxSymbolRateMSps: 15,
				MaxOccupancy:      0.50,
			},
			Confidence: 0.60,
		},
	}
}
