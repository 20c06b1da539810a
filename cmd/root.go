package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "class-attendance",
	Short: "Real-time class attendance through face recognition",
	Long: `Class Attendance runs the attendance server: capture clients connect
over WebRTC, stream camera frames to the server, and verified students
are checked in automatically. Enrollment and session management are
available both over the HTTP API and from this CLI.`,
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
