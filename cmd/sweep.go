package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attend/internal/attendance"
	"github.com/kozaktomas/face-attend/internal/config"
	"github.com/kozaktomas/face-attend/internal/database/postgres"
	"github.com/kozaktomas/face-attend/internal/scheduler"
	"github.com/kozaktomas/face-attend/internal/session"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one pass of the session maintenance jobs",
	Long: `Run a single pass of the background session jobs: timetable
auto-creation, activation of due sessions, completion of expired ones,
and absentee finalization. Useful from cron or for catching up after
the server was down.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	courses := postgres.NewCourseRepository(pool)
	sessions := postgres.NewSessionRepository(pool)
	records := postgres.NewAttendanceRepository(pool)

	resolver := attendance.NewResolver(records, records, courses)
	sessionSvc := session.NewService(sessions, courses, resolver,
		cfg.Session.DefaultLateThreshold,
		time.Duration(cfg.Session.AbsenteeBufferMin)*time.Minute)

	scheduler.New(sessionSvc, cfg.Session.SweepInterval).Sweep(context.Background())
	fmt.Println("Sweep complete")
	return nil
}
