package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/capture"
	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/database/postgres"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
	"github.com/kozaktomas/class-attendance/internal/scheduler"
	"github.com/kozaktomas/class-attendance/internal/signaling"
	"github.com/kozaktomas/class-attendance/internal/verification"
	"github.com/kozaktomas/class-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance server",
	Long: `Start the attendance server: HTTP API, websocket signaling, and the
frame verification pipeline. Capture clients connect over /ws, stream
camera frames through a WebRTC data channel, and receive recognition
results back over the websocket.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
}

// resolveServeHostPort resolves port and host from flags and environment variables.
func resolveServeHostPort(cmd *cobra.Command) (int, string) {
	port := mustGetInt(cmd, "port")
	host := mustGetString(cmd, "host")

	if envPort := os.Getenv("WEB_PORT"); envPort != "" {
		fmt.Sscanf(envPort, "%d", &port)
	}
	if envHost := os.Getenv("WEB_HOST"); envHost != "" {
		host = envHost
	}
	return port, host
}

// resultPayload converts a scheduler result into the message pushed back to
// the capture client.
func resultPayload(result scheduler.Result) signaling.RecognitionResultPayload {
	payload := signaling.RecognitionResultPayload{
		SessionID: result.Job.SessionID,
		Faces:     result.Faces,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}
	scores := make(map[string]float64, len(result.Matches))
	for _, match := range result.Matches {
		scores[match.StudentID] = match.Score
	}
	for _, record := range result.Records {
		payload.Matches = append(payload.Matches, signaling.MatchedStudent{
			StudentID: record.StudentID,
			Score:     record.MatchScore,
			Status:    string(record.Status),
			New:       true,
		})
	}
	for _, studentID := range result.Duplicate {
		payload.Matches = append(payload.Matches, signaling.MatchedStudent{
			StudentID: studentID,
			Score:     scores[studentID],
			New:       false,
		})
	}
	return payload
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	port, host := resolveServeHostPort(cmd)
	cfg.Server.Host = host
	cfg.Server.Port = port

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	if err := pool.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := postgres.NewStore(pool)
	detector := facedetect.NewClient(cfg.Detector.URL)
	caches := verification.NewCacheManager(store)
	manager := attendance.NewManager(store,
		time.Duration(cfg.Session.OnTimeLimitMinutes)*time.Minute,
		time.Duration(cfg.Session.DefaultDurationHours)*time.Hour)

	schedule, err := scheduler.NewSchedule(cfg.Scheduler.Phases)
	if err != nil {
		return fmt.Errorf("invalid phase configuration: %w", err)
	}

	// The hub and the pipeline reference each other: frames flow from the
	// hub into the pipeline, results flow back through the hub.
	var hub *signaling.Hub

	sched := scheduler.New(detector, caches, manager,
		func(result scheduler.Result) {
			hub.PublishResult(result.Job.ClientID, resultPayload(result))
		},
		cfg.Scheduler.QueueSize, cfg.Scheduler.MaxWorkers)

	ingest := capture.NewFrameIngest(schedule, manager, sched)
	hub = signaling.NewHub(webrtc.Configuration{}, func(clientID string, data []byte) {
		if _, err := ingest.Ingest(context.Background(), clientID, data); err != nil {
			log.Printf("frame from client %s rejected: %v", clientID, err)
			hub.DeliverToClient(clientID, signaling.ErrorMessage(err.Error()))
		}
	})

	sched.Start()
	go hub.Run()

	server := web.NewServer(cfg, web.Deps{
		Manager:  manager,
		Store:    store,
		Detector: detector,
		Caches:   caches,
		Schedule: schedule,
		Hub:      hub,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		hub.Stop()
		sched.Stop()
	}()

	fmt.Printf("Starting attendance server on http://%s:%d\n", host, port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
