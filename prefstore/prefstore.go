// Package prefstore implements the Preference Store: persisted
// per-doctor terminology preferences, updated out-of-band (spec.md §3),
// behind one capability interface with a Postgres-backed implementation
// and an in-memory implementation for tests.
package prefstore

import (
	"context"

	"github.com/brunobiangulo/clinextract"
)

// Store reads and writes a doctor's learned terminology preferences.
type Store interface {
	// Get returns the doctor's preference snapshot. A doctor with no
	// stored preferences yields an empty DoctorPreferences, not an error.
	Get(ctx context.Context, doctorID string) (clinextract.DoctorPreferences, error)

	// Put replaces the stored entry for one original term.
	Put(ctx context.Context, doctorID, originalTerm string, entry clinextract.PreferenceEntry) error

	// BulkPut replaces many entries for a doctor in one call, used by the
	// XLSX import path.
	BulkPut(ctx context.Context, doctorID string, entries map[string]clinextract.PreferenceEntry) error

	Close() error
}
