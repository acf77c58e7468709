package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending          JobStatus = "pending"
	JobStatusResearching      JobStatus = "researching"
	JobStatusDrafting         JobStatus = "drafting"
	JobStatusQualityChecking  JobStatus = "quality_checking"
	JobStatusRefining         JobStatus = "refining"
	JobStatusFormatting       JobStatus = "formatting"
	JobStatusAwaitingApproval JobStatus = "awaiting_approval"
	JobStatusApproved         JobStatus = "approved"
	JobStatusPublished        JobStatus = "published"
	JobStatusRejected         JobStatus = "rejected"
	JobStatusArchived         JobStatus = "archived"
	JobStatusFailed           JobStatus = "failed"
	JobStatusTimedOut         JobStatus = "timed_out"
)

// Terminal reports whether a status can never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusPublished, JobStatusRejected, JobStatusArchived, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}

// Dispatchable reports whether the executor may claim a job in this status.
// awaiting_approval jobs are parked until the approval action moves them.
func (s JobStatus) Dispatchable() bool {
	switch s {
	case JobStatusPending, JobStatusResearching, JobStatusDrafting,
		JobStatusQualityChecking, JobStatusRefining, JobStatusFormatting,
		JobStatusApproved:
		return true
	}
	return false
}

// Phase enumerates the discrete pipeline steps.
type Phase string

const (
	PhaseResearch     Phase = "research"
	PhaseDraft        Phase = "draft"
	PhaseQualityCheck Phase = "quality_check"
	PhaseRefine       Phase = "refine"
	PhaseFormat       Phase = "format"
	PhasePublish      Phase = "publish"
)

// QualityPreference selects the backend tier when no explicit model is set.
type QualityPreference string

const (
	PreferenceFast     QualityPreference = "fast"
	PreferenceBalanced QualityPreference = "balanced"
	PreferenceQuality  QualityPreference = "quality"
)

// Job is the aggregate root for one unit of content-generation work.
type Job struct {
	ID                string
	Topic             string
	Style             string
	Tone              string
	TargetWords       int
	ModelsByPhase     map[Phase]string
	QualityPreference QualityPreference
	Status            JobStatus
	RefinementRounds  int
	ClaimedBy         *string
	ClaimedAt         *time.Time
	LastError         string
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ModelFor returns the explicitly requested backend for a phase, if any.
func (j *Job) ModelFor(phase Phase) string {
	if j.ModelsByPhase == nil {
		return ""
	}
	return j.ModelsByPhase[phase]
}

// ModelsJSON renders the phase→model map for storage.
func (j *Job) ModelsJSON() []byte {
	if len(j.ModelsByPhase) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(j.ModelsByPhase)
	if err != nil {
		return []byte("{}")
	}
	return b
}
