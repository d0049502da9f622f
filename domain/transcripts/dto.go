package transcripts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TranscribeRequest is the submission payload for a new transcription job.
type TranscribeRequest struct {
	UserID          string   `json:"userId"`
	AudioChunkPaths []string `json:"audioChunkPaths"`
}

// Validate checks the submission payload.
func (r *TranscribeRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if len(r.AudioChunkPaths) == 0 {
		return fmt.Errorf("audioChunkPaths must contain at least one path")
	}
	for i, p := range r.AudioChunkPaths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("audioChunkPaths[%d] is empty", i)
		}
	}
	return nil
}

// TranscribeResponse acknowledges an accepted job.
type TranscribeResponse struct {
	JobID string `json:"jobId"`
}

// ProcessTaskRequest is the delivery payload posted by the task queue.
type ProcessTaskRequest struct {
	JobID string `json:"jobId"`
}

// ChunkStatusEntry pairs an audio path with its chunk status.
type ChunkStatusEntry struct {
	AudioPath string
	Status    ChunkStatus
}

// ChunkStatuses is an ordered audio-path-to-status mapping. It serializes as
// a JSON object whose keys keep submission order, which plain maps cannot
// guarantee. Submitting the same path twice folds into one key: the slot
// keeps its first position, the status reflects the later chunk.
type ChunkStatuses []ChunkStatusEntry

// NewChunkStatuses builds the ordered mapping from chunks. The chunks must
// already be in sequence order.
func NewChunkStatuses(chunks []*Chunk) ChunkStatuses {
	out := make(ChunkStatuses, 0, len(chunks))
	slot := make(map[string]int, len(chunks))
	for _, c := range chunks {
		if i, ok := slot[c.AudioPath]; ok {
			out[i].Status = c.Status
			continue
		}
		slot[c.AudioPath] = len(out)
		out = append(out, ChunkStatusEntry{AudioPath: c.AudioPath, Status: c.Status})
	}
	return out
}

// MarshalJSON writes the mapping as a JSON object in entry order.
func (cs ChunkStatuses) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.AudioPath)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(entry.Status)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object preserving key order.
func (cs *ChunkStatuses) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("chunkStatuses: expected object, got %v", tok)
	}

	out := ChunkStatuses{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("chunkStatuses: expected string key, got %v", keyTok)
		}
		var status ChunkStatus
		if err := dec.Decode(&status); err != nil {
			return err
		}
		out = append(out, ChunkStatusEntry{AudioPath: key, Status: status})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*cs = out
	return nil
}

// TranscriptResult is the read model for a job.
type TranscriptResult struct {
	JobID          string        `json:"jobId"`
	UserID         string        `json:"userId"`
	JobStatus      JobStatus     `json:"jobStatus"`
	TranscriptText string        `json:"transcriptText"`
	ChunkStatuses  ChunkStatuses `json:"chunkStatuses"`
	CompletedTime  *time.Time    `json:"completedTime"`
}

// NewTranscriptResult projects a job with loaded chunks onto the wire shape.
func NewTranscriptResult(job *Job) *TranscriptResult {
	return &TranscriptResult{
		JobID:          job.ID,
		UserID:         job.UserID,
		JobStatus:      job.Status,
		TranscriptText: job.TranscriptText,
		ChunkStatuses:  NewChunkStatuses(job.Chunks),
		CompletedTime:  job.CompletedAt,
	}
}

// SearchParams filters the job listing.
type SearchParams struct {
	UserID string
	Status JobStatus
	Limit  int
}
