package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-attend",
	Short: "Face recognition attendance engine for class sessions",
	Long: `Face Attend turns a classroom camera feed into attendance records.
It matches faces against an enrolled student gallery, stabilizes noisy
per-frame matches before confirming anyone, and resolves confirmed
sightings into per-session attendance with an audit trail.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
