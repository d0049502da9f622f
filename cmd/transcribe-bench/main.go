// Command transcribe-bench submits a batch of transcription jobs and reports
// end-to-end latency once every job reaches a terminal state. Useful for
// sizing the worker pool and the ASR concurrency cap.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scribehq/scribe/pkg/sdk"
)

type jobResult struct {
	jobID    string
	status   string
	duration time.Duration
}

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "scribe server URL")
	jobs := flag.Int("jobs", 20, "number of jobs to submit")
	chunks := flag.Int("chunks", 5, "audio chunks per job")
	parallel := flag.Int("parallel", 10, "concurrent submitters")
	user := flag.String("user", "bench", "user id for submitted jobs")
	pollMs := flag.Int("poll-ms", 250, "transcript poll interval")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	client := sdk.New(sdk.Config{ServerURL: *serverURL})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if _, err := client.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server not reachable: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("submitting %d jobs x %d chunks against %s\n", *jobs, *chunks, *serverURL)
	start := time.Now()

	var mu sync.Mutex
	results := make([]jobResult, 0, *jobs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i := 0; i < *jobs; i++ {
		i := i
		g.Go(func() error {
			paths := make([]string, *chunks)
			for c := range paths {
				paths[c] = fmt.Sprintf("bench/job-%03d/chunk-%02d.wav", i, c)
			}

			jobStart := time.Now()
			resp, err := client.SubmitTranscription(gctx, sdk.SubmitRequest{
				UserID:          *user,
				AudioChunkPaths: paths,
			})
			if err != nil {
				return fmt.Errorf("submit job %d: %w", i, err)
			}

			transcript, err := client.WaitForTranscript(gctx, resp.JobID,
				time.Duration(*pollMs)*time.Millisecond)
			if err != nil {
				return fmt.Errorf("wait for job %s: %w", resp.JobID, err)
			}

			mu.Lock()
			results = append(results, jobResult{
				jobID:    resp.JobID,
				status:   transcript.JobStatus,
				duration: time.Since(jobStart),
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "bench failed: %v\n", err)
		os.Exit(1)
	}

	report(results, time.Since(start), *jobs, *chunks)
}

func report(results []jobResult, elapsed time.Duration, jobs, chunks int) {
	completed := 0
	for _, r := range results {
		if r.status == "completed" {
			completed++
		}
	}

	durations := make([]time.Duration, len(results))
	for i, r := range results {
		durations[i] = r.duration
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	fmt.Printf("\ndone in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  jobs:       %d (%d completed, %d failed)\n",
		len(results), completed, len(results)-completed)
	fmt.Printf("  chunks:     %d\n", jobs*chunks)
	fmt.Printf("  throughput: %.1f chunks/s\n",
		float64(jobs*chunks)/elapsed.Seconds())
	if len(durations) > 0 {
		fmt.Printf("  latency:    p50=%s p90=%s max=%s\n",
			percentile(durations, 0.50).Round(time.Millisecond),
			percentile(durations, 0.90).Round(time.Millisecond),
			durations[len(durations)-1].Round(time.Millisecond))
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
