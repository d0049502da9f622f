package transcripts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/scribehq/scribe/pkg/apperror"
	"github.com/scribehq/scribe/pkg/logger"
)

// Claim sentinels. A claim on a terminal chunk is not an error condition for
// the processor, it just means the work is already decided.
var (
	// ErrChunkCompleted means the chunk already holds a transcript.
	ErrChunkCompleted = errors.New("chunk already completed")
	// ErrChunkFailed means the chunk already failed permanently.
	ErrChunkFailed = errors.New("chunk already failed permanently")
)

// Claim is the result of atomically taking a chunk for processing.
type Claim struct {
	AudioPath string `bun:"audio_path"`
	Attempts  int    `bun:"attempts"`
}

// Repository handles database operations for transcription jobs and chunks
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository creates a new transcripts repository
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("transcripts.repo")),
	}
}

// CreateJob persists a queued job and one pending chunk per audio path, in
// submission order, inside one transaction.
func (r *Repository) CreateJob(ctx context.Context, userID string, audioPaths []string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	chunks := make([]*Chunk, len(audioPaths))
	for i, path := range audioPaths {
		chunks[i] = &Chunk{
			ID:        uuid.NewString(),
			JobID:     job.ID,
			Sequence:  i,
			AudioPath: path,
			Status:    ChunkStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(job).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&chunks).Exec(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		r.log.Error("failed to create job", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	job.Chunks = chunks
	return job, nil
}

// GetJobWithChunks loads a job and its chunks in sequence order.
func (r *Repository) GetJobWithChunks(ctx context.Context, jobID string) (*Job, error) {
	job := &Job{}
	err := r.db.NewSelect().
		Model(job).
		Relation("Chunks", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("sequence ASC")
		}).
		Where("tj.id = ?", jobID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("job", jobID)
		}
		r.log.Error("failed to load job", logger.Error(err), slog.String("job_id", jobID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return job, nil
}

// UpdateJobStatus sets the job status. Terminal states also stamp
// completed_at; moving back out of a terminal state clears it.
func (r *Repository) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error {
	now := time.Now().UTC()
	q := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id = ?", jobID)
	if status.IsTerminal() {
		q = q.Set("completed_at = ?", now)
	} else {
		q = q.Set("completed_at = NULL")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		r.log.Error("failed to update job status", logger.Error(err), slog.String("job_id", jobID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return apperror.NewNotFound("job", jobID)
	}
	return nil
}

// SetJobResult finalizes the job in one write: status, assembled transcript,
// and the completion timestamp.
func (r *Repository) SetJobResult(ctx context.Context, jobID string, status JobStatus, transcript string) error {
	now := time.Now().UTC()
	q := r.db.NewUpdate().
		Model((*Job)(nil)).
		Set("status = ?", status).
		Set("transcript_text = ?", transcript).
		Set("updated_at = ?", now).
		Where("id = ?", jobID)
	if status.IsTerminal() {
		q = q.Set("completed_at = ?", now)
	}

	if _, err := q.Exec(ctx); err != nil {
		r.log.Error("failed to finalize job", logger.Error(err), slog.String("job_id", jobID))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ListChunkIDs returns the job's chunk ids in sequence order.
func (r *Repository) ListChunkIDs(ctx context.Context, jobID string) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*Chunk)(nil)).
		Column("id").
		Where("job_id = ?", jobID).
		Order("sequence ASC").
		Scan(ctx, &ids)
	if err != nil {
		r.log.Error("failed to list chunk ids", logger.Error(err), slog.String("job_id", jobID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return ids, nil
}

// GetChunk loads one chunk.
func (r *Repository) GetChunk(ctx context.Context, chunkID string) (*Chunk, error) {
	chunk := &Chunk{}
	err := r.db.NewSelect().
		Model(chunk).
		Where("id = ?", chunkID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("chunk", chunkID)
		}
		r.log.Error("failed to load chunk", logger.Error(err), slog.String("chunk_id", chunkID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return chunk, nil
}

// ClaimChunk atomically moves a non-terminal chunk to in_progress,
// increments its attempt counter and clears the stored error, returning the
// claimed path and the new count. Terminal chunks are never reclaimed: a
// claim on one returns ErrChunkCompleted or ErrChunkFailed so redelivered
// tasks skip them.
func (r *Repository) ClaimChunk(ctx context.Context, chunkID string) (*Claim, error) {
	now := time.Now().UTC()
	claim := &Claim{}
	err := r.db.NewRaw(`
		UPDATE audio_chunks
		SET status = 'in_progress', attempts = attempts + 1, last_error = NULL, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'permanent_failure')
		RETURNING audio_path, attempts`,
		now, chunkID,
	).Scan(ctx, claim)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.log.Error("failed to claim chunk", logger.Error(err), slog.String("chunk_id", chunkID))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	// No row updated: either the chunk is terminal or it does not exist.
	chunk, gErr := r.GetChunk(ctx, chunkID)
	if gErr != nil {
		return nil, gErr
	}
	switch chunk.Status {
	case ChunkStatusCompleted:
		return nil, ErrChunkCompleted
	case ChunkStatusPermanentFailure:
		return nil, ErrChunkFailed
	default:
		return nil, apperror.ErrDatabase.WithInternal(
			fmt.Errorf("claim affected no rows for non-terminal chunk %s", chunkID))
	}
}

// MarkChunkCompleted stores the transcript and closes the chunk.
func (r *Repository) MarkChunkCompleted(ctx context.Context, chunkID, transcript string) error {
	return r.updateChunk(ctx, chunkID, ChunkStatusCompleted, transcript, nil)
}

// MarkChunkTransient records a retryable failure without closing the chunk.
func (r *Repository) MarkChunkTransient(ctx context.Context, chunkID string, cause error) error {
	return r.updateChunk(ctx, chunkID, ChunkStatusTransientError, "", cause)
}

// MarkChunkFailed closes the chunk as permanently failed.
func (r *Repository) MarkChunkFailed(ctx context.Context, chunkID string, cause error) error {
	return r.updateChunk(ctx, chunkID, ChunkStatusPermanentFailure, "", cause)
}

func (r *Repository) updateChunk(ctx context.Context, chunkID string, status ChunkStatus, transcript string, cause error) error {
	q := r.db.NewUpdate().
		Model((*Chunk)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", chunkID)
	if transcript != "" {
		q = q.Set("transcript = ?", transcript)
	}
	if cause != nil {
		q = q.Set("last_error = ?", truncateError(cause.Error()))
	}

	if _, err := q.Exec(ctx); err != nil {
		r.log.Error("failed to update chunk", logger.Error(err),
			slog.String("chunk_id", chunkID), slog.String("status", string(status)))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// ResetInProgressChunks returns every in_progress chunk to pending. Called
// once at startup: chunks stuck in in_progress belong to a process that died
// mid-call, and their claimed attempt stays counted.
func (r *Repository) ResetInProgressChunks(ctx context.Context) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*Chunk)(nil)).
		Set("status = ?", ChunkStatusPending).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", ChunkStatusInProgress).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to reset in-progress chunks", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// ResetStaleInProgressChunks returns in_progress chunks older than the cutoff
// to pending. Used by the periodic sweep to catch chunks orphaned while the
// process kept running.
func (r *Repository) ResetStaleInProgressChunks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := r.db.NewUpdate().
		Model((*Chunk)(nil)).
		Set("status = ?", ChunkStatusPending).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", ChunkStatusInProgress).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to reset stale chunks", logger.Error(err))
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	rows, _ := res.RowsAffected()
	return int(rows), nil
}

// ListNonTerminalJobIDs returns ids of jobs still queued or in progress,
// oldest first.
func (r *Repository) ListNonTerminalJobIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*Job)(nil)).
		Column("id").
		Where("status IN (?)", bun.In([]JobStatus{JobStatusQueued, JobStatusInProgress})).
		Order("created_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		r.log.Error("failed to list non-terminal jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return ids, nil
}

// SearchJobs lists jobs with chunks, newest first, with optional user and
// status filters.
func (r *Repository) SearchJobs(ctx context.Context, params SearchParams) ([]*Job, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}
	if params.Limit > 200 {
		params.Limit = 200
	}

	jobs := []*Job{}
	q := r.db.NewSelect().
		Model(&jobs).
		Relation("Chunks", func(sq *bun.SelectQuery) *bun.SelectQuery {
			return sq.Order("sequence ASC")
		}).
		Order("tj.created_at DESC").
		Limit(params.Limit)
	if params.UserID != "" {
		q = q.Where("tj.user_id = ?", params.UserID)
	}
	if params.Status != "" {
		q = q.Where("tj.status = ?", params.Status)
	}

	if err := q.Scan(ctx); err != nil {
		r.log.Error("failed to search jobs", logger.Error(err))
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return jobs, nil
}

// truncateError keeps stored error messages bounded.
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
