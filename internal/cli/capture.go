package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/courierdesk/courierdesk/internal/capture"
	"github.com/courierdesk/courierdesk/internal/model"
)

func init() {
	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture manifest pages and process them in batch",
		Long: "Capture manifest pages into a session. Pages group into manifests of up " +
			"to 5 pages each; process drains the queue through the extraction service " +
			"and stores one priced manifest per group.",
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture session",
		Run:   runCaptureStart,
	}
	startCmd.Flags().String("mode", string(model.ModeAuto), "Extraction mode: default, hybrid or auto")
	startCmd.Flags().Bool("force", false, "Discard a previous session's unprocessed pages")
	captureCmd.AddCommand(startCmd)

	captureCmd.AddCommand(&cobra.Command{
		Use:   "page <image-file>...",
		Short: "Add pages to the current manifest",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCapturePage,
	})
	captureCmd.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Close the current manifest and queue it",
		Run:   runCaptureNext,
	})
	captureCmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Process all queued manifests in order",
		Run:   runCaptureProcess,
	})
	captureCmd.AddCommand(&cobra.Command{
		Use:   "pause",
		Short: "Pause processing after the current manifest",
		Run:   runCapturePause,
	})
	captureCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the capture session state",
		Run:   runCaptureStatus,
	})
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "End the capture session",
		Run:   runCaptureClear,
	}
	clearCmd.Flags().Bool("force", false, "Discard unprocessed pages")
	captureCmd.AddCommand(clearCmd)

	RootCmd.AddCommand(captureCmd)
}

// sessionView is the session without raw page payloads, for CLI output.
type sessionView struct {
	ID             string       `json:"id"`
	FolderID       string       `json:"folderId"`
	FolderName     string       `json:"folderName"`
	AIMode         model.AIMode `json:"aiMode"`
	CurrentPages   int          `json:"currentPages"`
	QueuedChunks   int          `json:"queuedChunks"`
	TotalCaptured  int          `json:"totalManifestsCaptured"`
	ProcessedCount int          `json:"processedCount"`
	IsProcessing   bool         `json:"isProcessing"`
	StatusLog      string       `json:"statusLog"`
}

func viewOf(sess *model.CaptureSession) sessionView {
	return sessionView{
		ID:             sess.ID,
		FolderID:       sess.FolderID,
		FolderName:     sess.FolderName,
		AIMode:         sess.AIMode,
		CurrentPages:   len(sess.CurrentChunk),
		QueuedChunks:   len(sess.PendingChunks),
		TotalCaptured:  sess.TotalCaptured,
		ProcessedCount: sess.ProcessedCount,
		IsProcessing:   sess.IsProcessing,
		StatusLog:      sess.StatusLog,
	}
}

func runCaptureStart(cmd *cobra.Command, args []string) {
	mode, _ := cmd.Flags().GetString("mode")
	force, _ := cmd.Flags().GetBool("force")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m := newCaptureManager(s)
	sess, err := m.Start(cmd.Context(), model.AIMode(mode), force)
	if errors.Is(err, capture.ErrChunksPending) {
		exitErr("start", fmt.Errorf("previous session has unprocessed pages; process them or pass --force"))
	}
	if err != nil {
		exitErr("start", err)
	}
	printJSON(viewOf(sess))
}

func runCapturePage(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m := newCaptureManager(s)
	var sess *model.CaptureSession
	for _, path := range args {
		page, err := loadPage(path)
		if err != nil {
			exitErr("read page", err)
		}
		sess, err = m.CapturePage(cmd.Context(), page)
		if errors.Is(err, capture.ErrNoSession) {
			exitErr("page", fmt.Errorf("no active session; run capture start first"))
		}
		if err != nil {
			exitErr("page", err)
		}
	}
	printJSON(viewOf(sess))
}

func loadPage(path string) (model.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Page{}, err
	}
	mime := "image/jpeg"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		mime = "image/png"
	case ".webp":
		mime = "image/webp"
	}
	return model.Page{
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
	}, nil
}

func runCaptureNext(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := newCaptureManager(s).FinishChunk(cmd.Context())
	if errors.Is(err, capture.ErrNoSession) {
		exitErr("next", fmt.Errorf("no active session; run capture start first"))
	}
	if err != nil {
		exitErr("next", err)
	}
	printJSON(viewOf(sess))
}

func runCaptureProcess(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	m := newCaptureManager(s)
	if err := m.ProcessQueue(cmd.Context()); err != nil {
		exitErr("process", err)
	}
	sess, err := m.Session(cmd.Context())
	if err != nil {
		exitErr("process", err)
	}
	printJSON(viewOf(sess))
}

func runCapturePause(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = newCaptureManager(s).Pause(cmd.Context())
	if errors.Is(err, capture.ErrNoSession) {
		exitErr("pause", fmt.Errorf("no active session"))
	}
	if err != nil {
		exitErr("pause", err)
	}
	fmt.Println(`{"ok":true}`)
}

func runCaptureStatus(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	sess, err := newCaptureManager(s).Session(cmd.Context())
	if errors.Is(err, capture.ErrNoSession) {
		fmt.Println(`{"active":false}`)
		return
	}
	if err != nil {
		exitErr("status", err)
	}
	printJSON(viewOf(sess))
}

func runCaptureClear(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	err = newCaptureManager(s).Clear(cmd.Context(), force)
	if errors.Is(err, capture.ErrChunksPending) {
		exitErr("clear", fmt.Errorf("session has unprocessed pages; process them or pass --force"))
	}
	if err != nil {
		exitErr("clear", err)
	}
	fmt.Println(`{"ok":true}`)
}
