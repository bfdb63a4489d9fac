// Package model defines the core domain models used throughout the application.
package model

import (
	"fmt"
	"time"
)

// TransponderKey uniquely identifies a satellite downlink channel.
// The same transponder observed across sessions always maps to the same key.
type TransponderKey struct {
	Satellite    string  `json:"satellite"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	BandwidthMHz float64 `json:"bandwidth_mhz"`
}

// String returns the canonical ledger key form.
func (k TransponderKey) String() string {
	return fmt.Sprintf("%s:%.3f:%.3f", k.Satellite, k.FrequencyMHz, k.BandwidthMHz)
}

// IsZero reports whether the key is unset.
func (k TransponderKey) IsZero() bool {
	return k.Satellite == "" && k.FrequencyMHz == 0 && k.BandwidthMHz == 0
}

// Transponder represents an identified satellite downlink channel.
// Created on first observation; never deleted, only updated.
type Transponder struct {
	FirstObserved   time.Time      `json:"first_observed"`
	LastObserved    time.Time      `json:"last_observed"`
	Key             TransponderKey `json:"key"`
	Polarization    string         `json:"polarization,omitempty"` // "H", "V", "LHCP", "RHCP"
	OperatorName    string         `json:"operator_name,omitempty"`
	OperatorCountry string         `json:"operator_country,omitempty"`
	LongitudeEast   float64        `json:"longitude_east,omitempty"` // orbital position in degrees East
}
