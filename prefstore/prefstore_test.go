package prefstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
)

func TestMemoryStorePutThenGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Put(ctx, "doc-1", "htn", clinextract.PreferenceEntry{
		Preferred:   "hypertension",
		Confidence:  0.9,
		LastUpdated: time.Now(),
	})
	require.NoError(t, err)

	prefs, err := s.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "hypertension", prefs.Entries["htn"].Preferred)
}

func TestMemoryStoreUnknownDoctorIsEmptyNotError(t *testing.T) {
	s := NewMemoryStore()
	prefs, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, prefs.Entries)
}

func TestXLSXRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "doc-1", "dm2", clinextract.PreferenceEntry{
		Preferred:   "type 2 diabetes mellitus",
		Confidence:  0.8,
		LastUpdated: time.Now(),
	}))

	path := filepath.Join(t.TempDir(), "prefs.xlsx")
	require.NoError(t, ExportXLSX(ctx, s, "doc-1", path))

	s2 := NewMemoryStore()
	n, err := ImportXLSX(ctx, s2, "doc-2", path)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	prefs, err := s2.Get(ctx, "doc-2")
	require.NoError(t, err)
	require.Equal(t, "type 2 diabetes mellitus", prefs.Entries["dm2"].Preferred)
}
