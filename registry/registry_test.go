package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clinextract"
)

func TestStartThenStatus(t *testing.T) {
	r := New()
	job, superseded := r.Start("conv-1", "group-1", func() {})
	assert.Nil(t, superseded)

	got, ok := r.Status(job.JobID)
	require.True(t, ok)
	assert.Equal(t, clinextract.JobPending, got.Status)
}

func TestDuplicateSubmissionReturnsSupersededCancelFunc(t *testing.T) {
	r := New()
	firstCancelled := false
	first, _ := r.Start("conv-1", "group-1", func() { firstCancelled = true })
	r.SetStatus(first.JobID, clinextract.JobRunning)

	_, superseded := r.Start("conv-1", "group-1", func() {})
	require.NotNil(t, superseded)
	superseded()

	assert.True(t, firstCancelled)
}

func TestCancelIsIdempotent(t *testing.T) {
	r := New()
	calls := 0
	job, _ := r.Start("conv-1", "group-1", func() { calls++ })
	r.SetStatus(job.JobID, clinextract.JobRunning)

	assert.True(t, r.Cancel(job.JobID))
	assert.True(t, r.Cancel(job.JobID))
	assert.Equal(t, 1, calls)

	got, _ := r.Status(job.JobID)
	assert.Equal(t, clinextract.JobCancelled, got.Status)
}

func TestCancelUnknownJobReturnsFalse(t *testing.T) {
	r := New()
	assert.False(t, r.Cancel("nope"))
}
