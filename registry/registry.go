// Package registry implements the Job Registry: in-memory bookkeeping of
// jobs indexed by job_id and by (conversation_id, template_group_id),
// guarded by a single mutex (spec.md §4.11).
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/clinextract"
)

// CancelFunc cancels a running job's context. The Orchestrator registers
// one per job at start time.
type CancelFunc func()

// Registry tracks every job's Job record and cancellation handle.
type Registry struct {
	mu       sync.Mutex
	byID     map[string]*clinextract.Job
	byGroup  map[string]string // (conversation_id, template_group_id) -> job_id
	cancels  map[string]CancelFunc
}

func New() *Registry {
	return &Registry{
		byID:    make(map[string]*clinextract.Job),
		byGroup: make(map[string]string),
		cancels: make(map[string]CancelFunc),
	}
}

func groupKey(conversationID, templateGroupID string) string {
	return conversationID + "\x00" + templateGroupID
}

// Start registers a new job. If a Running job already exists for
// (conversation_id, template_group_id), its cancel func is returned so the
// caller can cancel it first, per spec.md §4.11's "if an existing Running
// job matches... it is cancelled first".
func (r *Registry) Start(conversationID, templateGroupID string, cancel CancelFunc) (*clinextract.Job, CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := groupKey(conversationID, templateGroupID)
	var superseded CancelFunc
	if existingID, ok := r.byGroup[key]; ok {
		if existing, ok := r.byID[existingID]; ok && existing.Status == clinextract.JobRunning {
			superseded = r.cancels[existingID]
		}
	}

	job := &clinextract.Job{
		JobID:            uuid.NewString(),
		ConversationID:   conversationID,
		TemplateGroupID:  templateGroupID,
		Status:           clinextract.JobPending,
		SectionStates:    make(map[string]clinextract.ValidationStatus),
		StartedAt:        time.Now(),
	}
	r.byID[job.JobID] = job
	r.byGroup[key] = job.JobID
	r.cancels[job.JobID] = cancel

	return job, superseded
}

// SetStatus updates a job's top-level status.
func (r *Registry) SetStatus(jobID string, status clinextract.JobStatusValue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.byID[jobID]; ok {
		job.Status = status
	}
}

// SetSectionStatus records one section's current status within its job.
func (r *Registry) SetSectionStatus(jobID, sectionID string, status clinextract.ValidationStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.byID[jobID]; ok {
		job.SectionStates[sectionID] = status
	}
}

// SetGlobalMappings records the job-scope concept mappings resolved during
// global term resolution (spec.md §4.9 step 2).
func (r *Registry) SetGlobalMappings(jobID string, mappings []clinextract.ConceptMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.byID[jobID]; ok {
		job.GlobalMappings = mappings
	}
}

// Status returns a snapshot copy of the job, or false if unknown.
func (r *Registry) Status(jobID string) (clinextract.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.byID[jobID]
	if !ok {
		return clinextract.Job{}, false
	}
	snapshot := *job
	snapshot.SectionStates = make(map[string]clinextract.ValidationStatus, len(job.SectionStates))
	for k, v := range job.SectionStates {
		snapshot.SectionStates[k] = v
	}
	return snapshot, true
}

// Cancel transitions jobID to Cancelled and invokes its cancel func.
// Calling Cancel N times on the same jobID has the same observable effect
// as once (Testable Property 6): the cancel func is invoked at most once,
// and a job already in a terminal state is left untouched.
func (r *Registry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.byID[jobID]
	if !ok {
		return false
	}
	if isTerminal(job.Status) {
		return true
	}

	job.Status = clinextract.JobCancelled
	if cancel, ok := r.cancels[jobID]; ok {
		cancel()
		delete(r.cancels, jobID)
	}
	return true
}

func isTerminal(status clinextract.JobStatusValue) bool {
	switch status {
	case clinextract.JobCompleted, clinextract.JobPartiallyFailed, clinextract.JobFailed, clinextract.JobCancelled:
		return true
	default:
		return false
	}
}
