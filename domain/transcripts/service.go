package transcripts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/pkg/apperror"
	"github.com/scribehq/scribe/pkg/asr"
	"github.com/scribehq/scribe/pkg/logger"
)

// Service owns the transcription job lifecycle: submission, delivery-driven
// processing, and the transcript read model.
type Service struct {
	repo        *Repository
	transcriber asr.Transcriber
	dispatcher  dispatch.Dispatcher
	maxRetries  int
	backoff     time.Duration
	log         *slog.Logger
}

// NewService creates a transcripts service.
func NewService(
	repo *Repository,
	transcriber asr.Transcriber,
	dispatcher dispatch.Dispatcher,
	maxRetries int,
	backoff time.Duration,
	log *slog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		maxRetries:  maxRetries,
		backoff:     backoff,
		log:         log.With(logger.Scope("transcripts.service")),
	}
}

// Submit persists a queued job for the audio paths and enqueues its delivery.
// The job row is committed before the enqueue, so a dispatch outage leaves a
// queued job behind that startup recovery re-enqueues; the caller still gets
// an error so it can retry sooner.
func (s *Service) Submit(ctx context.Context, req *TranscribeRequest) (*Job, error) {
	job, err := s.repo.CreateJob(ctx, req.UserID, req.AudioChunkPaths)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.Enqueue(ctx, job.ID); err != nil {
		s.log.Error("failed to enqueue job",
			logger.Error(err), slog.String("job_id", job.ID))
		return nil, apperror.ErrDispatchUnavailable.WithInternal(err)
	}

	s.log.Info("job submitted",
		slog.String("job_id", job.ID),
		slog.String("user_id", req.UserID),
		slog.Int("chunks", len(req.AudioChunkPaths)))
	return job, nil
}

// ProcessJob runs one delivery for a job: claim each chunk in sequence, call
// the transcriber with retries, then derive the final job state from the
// chunk states. It is safe to deliver the same job any number of times;
// terminal chunks and terminal jobs are skipped, so a redelivery only redoes
// undecided work.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobWithChunks(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			// A delivery can outlive its job. Dropping it beats retrying a
			// delivery that can never succeed.
			s.log.Warn("delivery for unknown job dropped", slog.String("job_id", jobID))
			return nil
		}
		return err
	}
	if job.Status.IsTerminal() {
		s.log.Debug("delivery for finished job skipped",
			slog.String("job_id", jobID), slog.String("status", string(job.Status)))
		return nil
	}

	if err := s.repo.UpdateJobStatus(ctx, jobID, JobStatusInProgress); err != nil {
		return err
	}

	for _, chunk := range job.Chunks {
		if err := s.processChunk(ctx, chunk.ID); err != nil {
			return err
		}
	}

	return s.finalizeJob(ctx, jobID)
}

// processChunk drives one chunk to a terminal state. Each iteration claims
// the chunk, which bumps the attempt counter, so attempts spent before a
// crash stay spent after recovery. Transient failures sleep a linear backoff
// and loop; permanent failures and an exhausted budget close the chunk.
func (s *Service) processChunk(ctx context.Context, chunkID string) error {
	for {
		claim, err := s.repo.ClaimChunk(ctx, chunkID)
		if errors.Is(err, ErrChunkCompleted) || errors.Is(err, ErrChunkFailed) {
			return nil
		}
		if err != nil {
			return err
		}

		log := s.log.With(
			slog.String("chunk_id", chunkID),
			slog.String("audio_path", claim.AudioPath),
			slog.Int("attempt", claim.Attempts))

		if claim.Attempts > s.maxRetries {
			// The budget was spent by earlier deliveries, possibly across a
			// crash. Close the chunk without another transcriber call.
			log.Warn("chunk retry budget exhausted")
			return s.repo.MarkChunkFailed(ctx, chunkID,
				errors.New("retry budget exhausted"))
		}

		transcript, err := s.transcriber.Transcribe(ctx, claim.AudioPath)
		if err == nil {
			log.Debug("chunk transcribed")
			return s.repo.MarkChunkCompleted(ctx, chunkID, transcript)
		}

		if ctx.Err() != nil {
			// Shutdown, not a transcriber verdict. Leave the chunk for the
			// startup reset instead of recording a failure.
			return ctx.Err()
		}

		if asr.IsPermanent(err) {
			log.Warn("chunk failed permanently", logger.Error(err))
			return s.repo.MarkChunkFailed(ctx, chunkID, err)
		}

		log.Warn("chunk failed transiently", logger.Error(err))
		if claim.Attempts >= s.maxRetries {
			log.Warn("chunk failed after max retries")
			return s.repo.MarkChunkFailed(ctx, chunkID,
				errors.New("max retries exceeded: "+err.Error()))
		}
		if mErr := s.repo.MarkChunkTransient(ctx, chunkID, err); mErr != nil {
			return mErr
		}
		if sErr := s.sleepBackoff(ctx, claim.Attempts); sErr != nil {
			return sErr
		}
	}
}

// sleepBackoff waits attempt × backoff, honoring cancellation.
func (s *Service) sleepBackoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * s.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// finalizeJob recomputes the job state from its chunks and stores the
// assembled transcript. Reading the chunks back instead of trusting in-memory
// state makes the finalize correct even when a concurrent delivery did part
// of the work.
func (s *Service) finalizeJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobWithChunks(ctx, jobID)
	if err != nil {
		return err
	}

	status := JobStatusFromChunks(job.Chunks)
	if !status.IsTerminal() {
		// Another delivery still owns undecided chunks; it will finalize.
		s.log.Debug("job not finalizable yet", slog.String("job_id", jobID))
		return nil
	}

	if err := s.repo.SetJobResult(ctx, jobID, status, JoinTranscripts(job.Chunks)); err != nil {
		return err
	}

	s.log.Info("job finished",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
		slog.Int("chunks", len(job.Chunks)))
	return nil
}

// GetTranscript returns the read model for a job.
func (s *Service) GetTranscript(ctx context.Context, jobID string) (*TranscriptResult, error) {
	job, err := s.repo.GetJobWithChunks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return NewTranscriptResult(job), nil
}

// Search lists jobs matching the filters, newest first.
func (s *Service) Search(ctx context.Context, params SearchParams) ([]*TranscriptResult, error) {
	jobs, err := s.repo.SearchJobs(ctx, params)
	if err != nil {
		return nil, err
	}

	results := make([]*TranscriptResult, len(jobs))
	for i, job := range jobs {
		results[i] = NewTranscriptResult(job)
	}
	return results, nil
}

func isNotFound(err error) bool {
	var appErr *apperror.Error
	return errors.As(err, &appErr) && appErr.HTTPStatus == 404
}
