// Package capture owns the single active capture session: page grouping
// into manifest-sized chunks and the sequential drain that turns queued
// chunks into stored manifests.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/parser"
)

// ChunkCapacity is the hard cap of pages per chunk; reaching it closes the
// chunk automatically.
const ChunkCapacity = 5

// interChunkPause is the breather between successive service calls during
// a queue drain.
const interChunkPause = 500 * time.Millisecond

// Sentinel errors. ErrChunksPending signals that starting or clearing would
// drop queued work; callers may force past it.
var (
	ErrNoSession     = errors.New("no active capture session")
	ErrProcessing    = errors.New("capture session is already processing")
	ErrChunksPending = errors.New("capture session has unprocessed chunks")
)

// Store is the slice of the record store the capture pipeline needs.
type Store interface {
	NewID() string
	Add(ctx context.Context, m *model.Manifest) error
	AddFolder(ctx context.Context, name string) (*model.Folder, error)
	RateConfig(ctx context.Context) (model.RateConfig, error)
	CaptureSession(ctx context.Context) (*model.CaptureSession, error)
	SaveCaptureSession(ctx context.Context, sess *model.CaptureSession) error
	ClearCaptureSession(ctx context.Context) error
}

// Manager drives the capture session state machine. The session and the
// store are single-writer resources: every mutation and the whole queue
// drain run under one mutex.
type Manager struct {
	mu     sync.Mutex
	store  Store
	parser parser.Parser
	log    *logrus.Entry

	// pause is re-checked between chunks; it never interrupts an
	// in-flight service call.
	pause chan struct{}
}

// NewManager returns a capture manager over the given store and parser.
func NewManager(store Store, p parser.Parser, log *logrus.Entry) *Manager {
	return &Manager{
		store:  store,
		parser: p,
		log:    log,
		pause:  make(chan struct{}, 1),
	}
}

// Session returns the active session, or ErrNoSession.
func (m *Manager) Session(ctx context.Context) (*model.CaptureSession, error) {
	sess, err := m.store.CaptureSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

// Start creates a fresh session with its own folder, superseding any
// previous one. When the previous session still has queued chunks, Start
// refuses with ErrChunksPending unless force is set.
func (m *Manager) Start(ctx context.Context, mode model.AIMode, force bool) (*model.CaptureSession, error) {
	if !model.ValidAIModes[mode] {
		return nil, fmt.Errorf("unknown ai mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.store.CaptureSession(ctx)
	if err != nil {
		return nil, err
	}
	if prev != nil && len(prev.PendingChunks) > 0 && !force {
		return nil, ErrChunksPending
	}

	now := time.Now()
	folderName := fmt.Sprintf("Session_%s_%s", now.Format("01-02-2006"), now.Format("15-04-05"))
	folder, err := m.store.AddFolder(ctx, folderName)
	if err != nil {
		return nil, fmt.Errorf("create session folder: %w", err)
	}

	sess := &model.CaptureSession{
		ID:         m.store.NewID(),
		FolderID:   folder.ID,
		FolderName: folder.Name,
		AIMode:     mode,
		StatusLog:  "Ready to capture.",
	}
	if err := m.store.SaveCaptureSession(ctx, sess); err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{"session": sess.ID, "mode": mode}).Info("capture session started")
	return sess, nil
}

// CapturePage appends a page to the current chunk. Reaching ChunkCapacity
// closes the chunk automatically.
func (m *Manager) CapturePage(ctx context.Context, page model.Page) (*model.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}

	sess.CurrentChunk = append(sess.CurrentChunk, page)
	if len(sess.CurrentChunk) >= ChunkCapacity {
		m.closeChunk(sess)
	} else {
		sess.StatusLog = fmt.Sprintf("Page %d captured.", len(sess.CurrentChunk))
	}
	if err := m.store.SaveCaptureSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FinishChunk closes the current chunk and queues it for processing.
// No-op when the current chunk is empty.
func (m *Manager) FinishChunk(ctx context.Context) (*model.CaptureSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.Session(ctx)
	if err != nil {
		return nil, err
	}
	if len(sess.CurrentChunk) == 0 {
		return sess, nil
	}
	m.closeChunk(sess)
	if err := m.store.SaveCaptureSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (m *Manager) closeChunk(sess *model.CaptureSession) {
	sess.PendingChunks = append(sess.PendingChunks, model.Chunk{
		ID:    m.store.NewID(),
		Pages: sess.CurrentChunk,
	})
	sess.CurrentChunk = nil
	sess.TotalCaptured++
	sess.StatusLog = "Manifest captured. Ready for next."
}

// Pause halts the drain after the in-flight chunk completes. Queued chunks
// are kept.
func (m *Manager) Pause(ctx context.Context) error {
	select {
	case m.pause <- struct{}{}:
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, err := m.Session(ctx)
	if err != nil {
		return err
	}
	if !sess.IsProcessing {
		return nil
	}
	sess.IsProcessing = false
	sess.StatusLog = "Paused by user."
	return m.store.SaveCaptureSession(ctx, sess)
}

// Clear removes the session record. When chunks are still queued, Clear
// refuses with ErrChunksPending unless force is set.
func (m *Manager) Clear(ctx context.Context, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.CaptureSession(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if len(sess.PendingChunks) > 0 && !force {
		return ErrChunksPending
	}
	return m.store.ClearCaptureSession(ctx)
}
