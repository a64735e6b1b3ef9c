package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/config"
	"github.com/kozaktomas/face-attend/internal/database/postgres"
	"github.com/kozaktomas/face-attend/internal/enrollment"
	"github.com/kozaktomas/face-attend/internal/extractor"
	"github.com/kozaktomas/face-attend/internal/recognition"
	"github.com/kozaktomas/face-attend/internal/scheduler"
	"github.com/kozaktomas/face-attend/internal/session"
	"github.com/kozaktomas/face-attend/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the Face Attend server.
It exposes the kiosk recognition endpoint, the management API for
students, courses, and sessions, and runs the background session
scheduler (activation, completion, absentee finalization).`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (string, int) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return host, port
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Extractor.URL == "" {
		return errors.New("EXTRACTOR_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	students := postgres.NewStudentRepository(pool)
	courses := postgres.NewCourseRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	records := postgres.NewAttendanceRepository(pool)

	faceEngine := extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Timeout)

	matcher := recognition.NewMatcher(cfg.Recognition.SimilarityThreshold)
	stateStore := recognition.NewMemoryStateStore(cfg.Recognition.WindowN)
	stabilizer := recognition.NewStabilizer(stateStore,
		cfg.Recognition.ConfirmK, cfg.Recognition.WindowN,
		time.Duration(cfg.Recognition.CooldownSeconds)*time.Second)

	resolver := attendance.NewResolver(records, records, courses)
	engine := recognition.NewEngine(faceEngine, students, sessions, matcher,
		stabilizer, resolver, cfg.Extractor.MaxFrameSize)

	selector := enrollment.NewSelector(cfg.Quality,
		cfg.Enrollment.MinFrames, cfg.Enrollment.MaxEmbeddings)
	enroller := enrollment.NewService(faceEngine, students, students, selector,
		cfg.Enrollment.DuplicateSim, cfg.Extractor.MaxFrameSize)

	sessionSvc := session.NewService(sessions, courses, resolver,
		cfg.Session.DefaultLateThreshold,
		time.Duration(cfg.Session.AbsenteeBufferMin)*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(sessionSvc, cfg.Session.SweepInterval)
	go sched.Run(ctx)

	host, port := resolveServeHostPort(cmd)
	server := web.NewServer(cfg, host, port, web.Deps{
		Engine:            engine,
		Enroller:          enroller,
		Sessions:          sessionSvc,
		Resolver:          resolver,
		Students:          students,
		Courses:           courses,
		SessionStore:      sessions,
		Records:           records,
		Audit:             records,
		OnSessionActivate: engine.ResetForNewSession,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attend on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
