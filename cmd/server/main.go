// Package main provides the entry point for the Scribe API server
//
// @title Scribe API
// @version 0.3.0
// @description Asynchronous audio transcription service
// @host localhost:8080
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/scribehq/scribe/domain/health"
	"github.com/scribehq/scribe/domain/scheduler"
	"github.com/scribehq/scribe/domain/transcripts"
	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/database"
	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/internal/migrate"
	"github.com/scribehq/scribe/internal/server"
	"github.com/scribehq/scribe/pkg/asr"
	"github.com/scribehq/scribe/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		migrate.Module,
		server.Module,

		// ASR gateway (external client or in-process simulator)
		asr.Module,

		// Domain modules. Transcripts comes before dispatch so crash recovery
		// runs before the worker pool starts polling.
		health.Module,
		transcripts.Module,
		dispatch.Module,

		// Scheduler module (stale chunk sweep, queue stats)
		scheduler.Module,
	).Run()
}
