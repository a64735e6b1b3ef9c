package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kozaktomas/face-attend/internal/config"
	"github.com/kozaktomas/face-attend/internal/database/postgres"
	"github.com/kozaktomas/face-attend/internal/enrollment"
	"github.com/kozaktomas/face-attend/internal/extractor"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Enroll a student from a directory of capture frames",
	Long: `Enroll a student's face templates from a directory of image frames.
Each image should contain exactly the enrollee's face; frames failing the
quality gates are reported and skipped. The batch fails as a whole when too
few frames qualify.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int64("student", 0, "Student ID to enroll (required)")
	_ = enrollCmd.MarkFlagRequired("student")
}

// imageExtensions lists the frame file types accepted from the directory.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

func collectFrameFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	studentID := mustGetInt64(cmd, "student")

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	if cfg.Extractor.URL == "" {
		return errors.New("EXTRACTOR_URL environment variable is required")
	}

	paths, err := collectFrameFiles(args[0])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no image files found in %s", args[0])
	}

	pool, err := postgres.Initialize(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	students := postgres.NewStudentRepository(pool)
	faceEngine := extractor.NewClient(cfg.Extractor.URL, cfg.Extractor.Timeout)
	selector := enrollment.NewSelector(cfg.Quality,
		cfg.Enrollment.MinFrames, cfg.Enrollment.MaxEmbeddings)
	enroller := enrollment.NewService(faceEngine, students, students, selector,
		cfg.Enrollment.DuplicateSim, cfg.Extractor.MaxFrameSize)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Reading frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	frames := make([][]byte, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		frames = append(frames, data)
		_ = bar.Add(1)
	}
	fmt.Println()

	result, err := enroller.Enroll(context.Background(), studentID, frames)
	if err != nil {
		var notEnough *enrollment.NotEnoughFramesError
		if errors.As(err, &notEnough) {
			fmt.Printf("Enrollment failed: %d of the required %d frames passed quality gates\n",
				notEnough.Qualified, notEnough.Required)
			for _, rej := range notEnough.Rejections {
				fmt.Printf("  %s: %s\n", filepath.Base(paths[rej.FrameIndex]), rej.Reason)
			}
			return errors.New("not enough quality frames")
		}
		return fmt.Errorf("enrollment failed: %w", err)
	}

	fmt.Printf("Enrolled student %d with %d templates (model %s)\n",
		result.StudentID, result.Added, result.Model)
	for _, rej := range result.Rejected {
		fmt.Printf("  skipped %s: %s\n", filepath.Base(paths[rej.FrameIndex]), rej.Reason)
	}
	return nil
}
