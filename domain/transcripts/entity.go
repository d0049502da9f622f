package transcripts

import (
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// JobStatus is the lifecycle state of a transcription job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsValid reports whether s is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// ChunkStatus is the lifecycle state of a single audio chunk.
type ChunkStatus string

const (
	ChunkStatusPending          ChunkStatus = "pending"
	ChunkStatusInProgress       ChunkStatus = "in_progress"
	ChunkStatusCompleted        ChunkStatus = "completed"
	ChunkStatusTransientError   ChunkStatus = "transient_error"
	ChunkStatusPermanentFailure ChunkStatus = "permanent_failure"
)

// IsTerminal reports whether the chunk can no longer change state.
func (s ChunkStatus) IsTerminal() bool {
	return s == ChunkStatusCompleted || s == ChunkStatusPermanentFailure
}

// Job is one transcription request covering an ordered list of audio chunks.
type Job struct {
	bun.BaseModel `bun:"table:transcription_jobs,alias:tj"`

	ID             string     `bun:"id,pk" json:"id"`
	UserID         string     `bun:"user_id,notnull" json:"userId"`
	Status         JobStatus  `bun:"status,notnull" json:"status"`
	TranscriptText string     `bun:"transcript_text,notnull" json:"transcriptText"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
	CompletedAt    *time.Time `bun:"completed_at" json:"completedAt,omitempty"`

	Chunks []*Chunk `bun:"rel:has-many,join:id=job_id" json:"chunks,omitempty"`
}

// Chunk is one audio segment of a job. Sequence preserves the submission
// order; AudioPath is the caller-supplied storage path handed to the ASR
// service.
type Chunk struct {
	bun.BaseModel `bun:"table:audio_chunks,alias:ac"`

	ID         string      `bun:"id,pk" json:"id"`
	JobID      string      `bun:"job_id,notnull" json:"jobId"`
	Sequence   int         `bun:"sequence,notnull" json:"sequence"`
	AudioPath  string      `bun:"audio_path,notnull" json:"audioPath"`
	Status     ChunkStatus `bun:"status,notnull" json:"status"`
	Transcript string      `bun:"transcript,notnull" json:"transcript"`
	Attempts   int         `bun:"attempts,notnull" json:"attempts"`
	LastError  *string     `bun:"last_error" json:"lastError,omitempty"`
	CreatedAt  time.Time   `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time   `bun:"updated_at,notnull" json:"updatedAt"`
}

// JoinTranscripts assembles the job transcript from its chunks: sequence
// order, completed chunks only, newline separated. Failed or empty chunks
// leave no gap marker.
func JoinTranscripts(chunks []*Chunk) string {
	sorted := make([]*Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	parts := make([]string, 0, len(sorted))
	for _, c := range sorted {
		if c.Status == ChunkStatusCompleted && c.Transcript != "" {
			parts = append(parts, c.Transcript)
		}
	}
	return strings.Join(parts, "\n")
}

// JobStatusFromChunks derives the job status from its chunk states: all
// completed is completed, any permanent failure among terminal chunks is
// failed, otherwise the job is still running.
func JobStatusFromChunks(chunks []*Chunk) JobStatus {
	if len(chunks) == 0 {
		return JobStatusCompleted
	}

	failed := false
	for _, c := range chunks {
		switch c.Status {
		case ChunkStatusPermanentFailure:
			failed = true
		case ChunkStatusCompleted:
		default:
			return JobStatusInProgress
		}
	}
	if failed {
		return JobStatusFailed
	}
	return JobStatusCompleted
}
