package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/courierdesk/courierdesk/internal/logging"
	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/parser"
	"github.com/courierdesk/courierdesk/internal/store"
)

// fakeParser scripts one response per call. A nil error with a nil result
// is not allowed; failures are scripted as errors.
type fakeParser struct {
	calls     int
	responses []fakeResponse
}

type fakeResponse struct {
	result *parser.Result
	err    error
	hybrid bool
}

func (f *fakeParser) Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(string)) (*parser.Result, error) {
	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("unexpected parse call %d", f.calls)
	}
	r := f.responses[f.calls]
	f.calls++
	if r.hybrid != hybrid {
		return nil, fmt.Errorf("call %d: hybrid = %v, want %v", f.calls-1, hybrid, r.hybrid)
	}
	if onProgress != nil {
		onProgress("working")
	}
	return r.result, r.err
}

func parsed(no string) fakeResponse {
	return fakeResponse{result: &parser.Result{
		ManifestNo:   no,
		ManifestDate: "01/15/2026",
		Items: []parser.Item{
			{SlNo: 1, SerialNo: "AWB-1000", Description: "Box", Type: "Parcel", Weight: 15},
		},
	}}
}

func newTestManager(t *testing.T, p parser.Parser) (*Manager, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewManager(s, p, logging.Component("capture")), s
}

func page(n int) model.Page {
	return model.Page{Data: fmt.Sprintf("page-%d", n), MimeType: "image/jpeg"}
}

func queueChunks(t *testing.T, m *Manager, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if _, err := m.CapturePage(ctx, page(i)); err != nil {
			t.Fatalf("capture page: %v", err)
		}
		if _, err := m.FinishChunk(ctx); err != nil {
			t.Fatalf("finish chunk: %v", err)
		}
	}
}

func TestStartAndCaptureFlow(t *testing.T) {
	ctx := context.Background()
	m, s := newTestManager(t, &fakeParser{})

	if _, err := m.Session(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session before start: err = %v, want ErrNoSession", err)
	}

	sess, err := m.Start(ctx, model.ModeDefault, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.StatusLog != "Ready to capture." {
		t.Errorf("status = %q", sess.StatusLog)
	}

	folders, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 1 || folders[0].ID != sess.FolderID {
		t.Fatalf("session folder not created: %+v", folders)
	}

	sess, err = m.CapturePage(ctx, page(0))
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if sess.StatusLog != "Page 1 captured." {
		t.Errorf("status = %q", sess.StatusLog)
	}
	if len(sess.PendingChunks) != 0 {
		t.Errorf("chunk closed early")
	}

	sess, err = m.FinishChunk(ctx)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(sess.PendingChunks) != 1 || sess.TotalCaptured != 1 {
		t.Fatalf("queue = %d, captured = %d", len(sess.PendingChunks), sess.TotalCaptured)
	}
	if sess.StatusLog != "Manifest captured. Ready for next." {
		t.Errorf("status = %q", sess.StatusLog)
	}
}

func TestCapturePageClosesChunkAtCapacity(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}

	var sess *model.CaptureSession
	var err error
	for i := 0; i < ChunkCapacity; i++ {
		sess, err = m.CapturePage(ctx, page(i))
		if err != nil {
			t.Fatalf("capture page %d: %v", i, err)
		}
	}
	if len(sess.PendingChunks) != 1 {
		t.Fatalf("queue = %d, want auto-closed chunk", len(sess.PendingChunks))
	}
	if len(sess.PendingChunks[0].Pages) != ChunkCapacity {
		t.Errorf("chunk pages = %d", len(sess.PendingChunks[0].Pages))
	}
	if len(sess.CurrentChunk) != 0 {
		t.Errorf("current chunk not reset")
	}
}

func TestFinishChunkEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess, err := m.FinishChunk(ctx)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if len(sess.PendingChunks) != 0 || sess.TotalCaptured != 0 {
		t.Fatalf("empty finish queued a chunk: %+v", sess)
	}
}

func TestStartRefusesPendingChunksUnlessForced(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 1)

	if _, err := m.Start(ctx, model.ModeDefault, false); !errors.Is(err, ErrChunksPending) {
		t.Fatalf("restart err = %v, want ErrChunksPending", err)
	}
	sess, err := m.Start(ctx, model.ModeHybrid, true)
	if err != nil {
		t.Fatalf("forced restart: %v", err)
	}
	if len(sess.PendingChunks) != 0 || sess.AIMode != model.ModeHybrid {
		t.Fatalf("forced restart kept old state: %+v", sess)
	}
}

func TestStartRejectsUnknownMode(t *testing.T) {
	m, _ := newTestManager(t, &fakeParser{})
	if _, err := m.Start(context.Background(), model.AIMode("turbo"), false); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestProcessQueueDrainsInOrder(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{responses: []fakeResponse{parsed("MF-1"), parsed("MF-2"), parsed("MF-3")}}
	m, s := newTestManager(t, fp)

	sess, err := m.Start(ctx, model.ModeDefault, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 3)

	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	sess, err = m.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if len(sess.PendingChunks) != 0 || sess.ProcessedCount != 3 || sess.IsProcessing {
		t.Fatalf("after drain: %+v", sess)
	}
	if sess.StatusLog != "All captured manifests processed." {
		t.Errorf("status = %q", sess.StatusLog)
	}

	got, err := s.List(ctx, store.ListParams{FolderID: sess.FolderID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("stored %d manifests, want 3", len(got))
	}
	// Newest first.
	for i, want := range []string{"MF-3", "MF-2", "MF-1"} {
		if got[i].ManifestNo != want {
			t.Errorf("manifest[%d] = %q, want %q", i, got[i].ManifestNo, want)
		}
	}
	if got[2].TotalAmount != 40 {
		t.Errorf("total = %v, want 40 for 15kg parcel under default rates", got[2].TotalAmount)
	}
}

func TestProcessQueueAutoEscalatesToHybrid(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{responses: []fakeResponse{
		parsed("MF-1"),
		{err: errors.New("model overloaded")},
		{result: parsed("MF-2").result, hybrid: true},
		parsed("MF-3"),
	}}
	m, s := newTestManager(t, fp)

	if _, err := m.Start(ctx, model.ModeAuto, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 3)

	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	sess, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.ProcessedCount != 3 || len(sess.PendingChunks) != 0 {
		t.Fatalf("after drain: %+v", sess)
	}
	got, err := s.List(ctx, store.ListParams{FolderID: sess.FolderID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("stored %d manifests, want 3", len(got))
	}
	if fp.calls != 4 {
		t.Errorf("parse calls = %d, want 4 (one escalation)", fp.calls)
	}
}

func TestProcessQueueHaltsOnFailureAndResumes(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{responses: []fakeResponse{
		parsed("MF-1"),
		{err: errors.New("timeout")},
		{result: parsed("MF-2").result},
		parsed("MF-3"),
	}}
	m, s := newTestManager(t, fp)

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 3)

	if err := m.ProcessQueue(ctx); err == nil {
		t.Fatal("expected error from failing chunk")
	}

	sess, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.IsProcessing {
		t.Error("still marked processing after failure")
	}
	if sess.StatusLog != "Processing paused due to error. Resume when ready." {
		t.Errorf("status = %q", sess.StatusLog)
	}
	if len(sess.PendingChunks) != 2 || sess.ProcessedCount != 1 {
		t.Fatalf("failed chunk not kept at head: queue = %d, processed = %d", len(sess.PendingChunks), sess.ProcessedCount)
	}

	// Resume drains the remaining chunks, failed one first.
	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	sess, _ = m.Session(ctx)
	if sess.ProcessedCount != 3 || len(sess.PendingChunks) != 0 {
		t.Fatalf("after resume: %+v", sess)
	}
	got, err := s.List(ctx, store.ListParams{FolderID: sess.FolderID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("stored %d manifests, want 3", len(got))
	}
}

func TestProcessQueueEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})
	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("process empty queue: %v", err)
	}
}

func TestPauseWithoutDrain(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})
	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Not processing: pause is a no-op and must not poison the next drain.
	if err := m.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	sess, _ := m.Session(ctx)
	if sess.StatusLog == "Paused by user." {
		t.Error("idle pause rewrote status")
	}
}

func TestClearRefusesPendingChunksUnlessForced(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, &fakeParser{})
	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 1)

	if err := m.Clear(ctx, false); !errors.Is(err, ErrChunksPending) {
		t.Fatalf("clear err = %v, want ErrChunksPending", err)
	}
	if err := m.Clear(ctx, true); err != nil {
		t.Fatalf("forced clear: %v", err)
	}
	if _, err := m.Session(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session after clear: err = %v, want ErrNoSession", err)
	}
}

// pausingParser simulates a second process issuing a pause while a chunk's
// service call is in flight: during the scripted call it rewrites the
// stored session with the processing flag cleared, exactly as Pause from
// another process does, then returns its result.
type pausingParser struct {
	inner   *fakeParser
	store   *store.SQLiteStore
	pauseOn int
}

func (p *pausingParser) Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(string)) (*parser.Result, error) {
	if p.inner.calls == p.pauseOn {
		sess, err := p.store.CaptureSession(ctx)
		if err != nil || sess == nil {
			return nil, fmt.Errorf("load session for pause: %v", err)
		}
		sess.IsProcessing = false
		sess.StatusLog = "Paused by user."
		if err := p.store.SaveCaptureSession(ctx, sess); err != nil {
			return nil, err
		}
	}
	return p.inner.Parse(ctx, pages, instruction, hybrid, onProgress)
}

func TestProcessQueueHonorsPauseDuringInFlightCall(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{responses: []fakeResponse{parsed("MF-1"), parsed("MF-2"), parsed("MF-3")}}
	m, s := newTestManager(t, nil)
	m.parser = &pausingParser{inner: fp, store: s, pauseOn: 0}

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 3)

	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	sess, err := m.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	// The in-flight chunk finishes; the next one must not start.
	if sess.ProcessedCount != 1 {
		t.Fatalf("processedCount = %d, want 1 (pause must stop the next chunk)", sess.ProcessedCount)
	}
	if len(sess.PendingChunks) != 2 {
		t.Fatalf("queue = %d, want 2 remaining", len(sess.PendingChunks))
	}
	if sess.IsProcessing {
		t.Error("still marked processing after pause")
	}
	if sess.StatusLog != "Paused by user." {
		t.Errorf("status = %q", sess.StatusLog)
	}
	got, err := s.List(ctx, store.ListParams{FolderID: sess.FolderID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("stored %d manifests, want 1", len(got))
	}

	// Resume drains the rest in order.
	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	sess, _ = m.Session(ctx)
	if sess.ProcessedCount != 3 || len(sess.PendingChunks) != 0 {
		t.Fatalf("after resume: %+v", sess)
	}
}

func TestProcessQueueStopsWhenSessionClearedMidCall(t *testing.T) {
	ctx := context.Background()
	fp := &fakeParser{responses: []fakeResponse{parsed("MF-1"), parsed("MF-2")}}
	m, s := newTestManager(t, nil)
	m.parser = &clearingParser{inner: fp, store: s}

	if _, err := m.Start(ctx, model.ModeDefault, false); err != nil {
		t.Fatalf("start: %v", err)
	}
	queueChunks(t, m, 2)

	if err := m.ProcessQueue(ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	// The drain must not write the cleared session back.
	if _, err := m.Session(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session resurrected: err = %v, want ErrNoSession", err)
	}
}

// clearingParser clears the stored session during the first service call,
// as a forced clear from another process does.
type clearingParser struct {
	inner *fakeParser
	store *store.SQLiteStore
}

func (p *clearingParser) Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(string)) (*parser.Result, error) {
	if p.inner.calls == 0 {
		if err := p.store.ClearCaptureSession(ctx); err != nil {
			return nil, err
		}
	}
	return p.inner.Parse(ctx, pages, instruction, hybrid, onProgress)
}
