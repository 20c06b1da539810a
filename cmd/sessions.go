package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/config"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage attendance sessions",
}

var sessionsStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Open a new attendance session for a class",
	RunE:  runSessionsStart,
}

var sessionsEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End an attendance session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsEnd,
}

var sessionsRecordsCmd = &cobra.Command{
	Use:   "records <session-id>",
	Short: "Print the check-ins of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsRecords,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsStartCmd)
	sessionsCmd.AddCommand(sessionsEndCmd)
	sessionsCmd.AddCommand(sessionsRecordsCmd)

	sessionsStartCmd.Flags().String("class", "", "Class ID (required)")
	sessionsStartCmd.Flags().Int("duration-minutes", 0, "Session length (defaults to SESSION_DEFAULT_DURATION_HOURS)")
	sessionsStartCmd.MarkFlagRequired("class")
}

func newAttendanceManager(ctx context.Context, cfg *config.Config) (*attendance.Manager, func(), error) {
	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	manager := attendance.NewManager(store,
		time.Duration(cfg.Session.OnTimeLimitMinutes)*time.Minute,
		time.Duration(cfg.Session.DefaultDurationHours)*time.Hour)
	return manager, func() { pool.Close() }, nil
}

func runSessionsStart(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	manager, cleanup, err := newAttendanceManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	classID := mustGetString(cmd, "class")
	duration := time.Duration(mustGetInt(cmd, "duration-minutes")) * time.Minute
	session, err := manager.StartSession(ctx, classID, time.Now(), duration)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s started for class %s\n", session.ID, session.ClassID)
	fmt.Printf("  On-time until: %s\n", session.OnTimeDeadline.Format(time.RFC3339))
	fmt.Printf("  Ends at:       %s\n", session.EndTime.Format(time.RFC3339))
	return nil
}

func runSessionsEnd(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	manager, cleanup, err := newAttendanceManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := manager.EndSession(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Session %s ended\n", session.ID)
	return nil
}

func runSessionsRecords(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	manager, cleanup, err := newAttendanceManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := manager.Records(ctx, args[0])
	if err != nil {
		return err
	}
	summary, err := manager.Summarize(ctx, args[0])
	if err != nil {
		return err
	}

	for _, record := range records {
		fmt.Printf("%-20s %-8s %s  score=%.2f\n",
			record.StudentID, record.Status,
			record.CheckInTime.Format("15:04:05"), record.MatchScore)
	}
	fmt.Printf("\n%d enrolled, %d present, %d late, %d absent\n",
		summary.Total, summary.Present, summary.Late, summary.Absent)
	return nil
}
