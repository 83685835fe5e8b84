package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// CONFIG - Engine-wide policies
// =============================================================================

// CarryoverPolicy decides how much unused vacation survives the year end.
type CarryoverPolicy string

const (
	// CarryoverCapped moves at most 5 unused days into the new year.
	CarryoverCapped CarryoverPolicy = "capped5"

	// CarryoverUnlimited moves all unused days.
	CarryoverUnlimited CarryoverPolicy = "unlimited"
)

// ConflictPolicy decides what happens to time entries on dates covered by
// an absence being approved.
type ConflictPolicy string

const (
	// ConflictDeleteEntries removes the entries and notifies the user.
	ConflictDeleteEntries ConflictPolicy = "delete_entries"

	// ConflictRejectApproval fails the approval instead.
	ConflictRejectApproval ConflictPolicy = "reject_approval"
)

// Config carries the tenant-wide policies every component reads.
type Config struct {
	// TimeZone is the single civil zone all dates are interpreted in.
	TimeZone *time.Location

	Carryover CarryoverPolicy
	Conflict  ConflictPolicy
}

// CarryoverCapDays is the cap applied under CarryoverCapped.
const CarryoverCapDays = 5

func DefaultConfig() Config {
	return Config{
		TimeZone:  time.UTC,
		Carryover: CarryoverCapped,
		Conflict:  ConflictDeleteEntries,
	}
}

func (c Config) Validate() error {
	if c.TimeZone == nil {
		return &ValidationError{Field: "timeZone", Message: "required"}
	}
	switch c.Carryover {
	case CarryoverCapped, CarryoverUnlimited:
	default:
		return &ValidationError{Field: "carryover", Message: fmt.Sprintf("unknown policy %q", c.Carryover)}
	}
	switch c.Conflict {
	case ConflictDeleteEntries, ConflictRejectApproval:
	default:
		return &ValidationError{Field: "conflict", Message: fmt.Sprintf("unknown policy %q", c.Conflict)}
	}
	return nil
}

// Clock returns a clock in the configured zone.
func (c Config) Clock() Clock { return NewClock(c.TimeZone) }
