package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/class-attendance/internal/config"
	"github.com/kozaktomas/class-attendance/internal/facedetect"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <directory>",
	Short: "Bulk-enroll students from a directory of photos",
	Long: `Enroll every photo in a directory as a student of one class. File names
decide identity: "s123_Jan Novak.jpg" enrolls student s123 with display
name "Jan Novak"; without an underscore the file stem is used as both.
Each photo must contain exactly one face. Re-running replaces existing
enrollments.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("class", "", "Class ID (required)")
	enrollCmd.MarkFlagRequired("class")
}

var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
}

// parsePhotoName splits a file name into student ID and display name.
func parsePhotoName(path string) (string, string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, name, ok := strings.Cut(stem, "_"); ok && id != "" && name != "" {
		return id, name
	}
	return stem, stem
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	classID := mustGetString(cmd, "class")

	entries, err := os.ReadDir(args[0])
	if err != nil {
		return fmt.Errorf("could not read directory: %w", err)
	}
	var photos []string
	for _, entry := range entries {
		if entry.IsDir() || !photoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		photos = append(photos, filepath.Join(args[0], entry.Name()))
	}
	if len(photos) == 0 {
		return errors.New("no photos found in directory")
	}

	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	detector := facedetect.NewClient(cfg.Detector.URL)

	bar := progressbar.NewOptions(len(photos),
		progressbar.OptionSetDescription("Enrolling students"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	enrolled := 0
	var skipped []string
	for _, photo := range photos {
		bar.Add(1)

		data, err := os.ReadFile(photo)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(photo), err))
			continue
		}
		face, err := detector.DetectSingle(ctx, data)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(photo), err))
			continue
		}

		studentID, name := parsePhotoName(photo)
		if _, err := store.UpsertEmbedding(ctx, studentID, face.Embedding); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(photo), err))
			continue
		}
		if err := store.UpdateStudentInfo(ctx, studentID, name, classID); err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", filepath.Base(photo), err))
			continue
		}
		enrolled++
	}
	bar.Finish()

	fmt.Printf("Enrolled %d of %d students into class %s\n", enrolled, len(photos), classID)
	for _, s := range skipped {
		fmt.Printf("  skipped %s\n", s)
	}
	return nil
}
