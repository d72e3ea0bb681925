package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/parser"
	"github.com/courierdesk/courierdesk/internal/tariff"
)

// errSessionGone stops a drain whose session was cleared or replaced by
// another process. The drain must never write such a session back.
var errSessionGone = errors.New("capture session replaced mid-drain")

// ProcessQueue drains the pending chunks strictly in FIFO order, one chunk
// at a time. Each success stores a manifest and pops the chunk; a failure
// leaves the failed chunk at the head of the queue for a manual retry and
// halts the drain. Pause takes effect between chunks, never mid-call.
//
// The whole drain runs as one loop under the manager mutex. A pause can
// arrive on the in-process channel or, from another process, as a cleared
// processing flag in the stored session; every mid-drain save goes through
// syncStatus so a stored pause is merged in rather than written over, and
// an in-flight chunk still finishes before the drain stops.
func (m *Manager) ProcessQueue(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.Session(ctx)
	if err != nil {
		return err
	}
	if sess.IsProcessing {
		return ErrProcessing
	}
	if len(sess.PendingChunks) == 0 {
		return nil
	}

	// Drop any stale pause signal from a previous drain.
	select {
	case <-m.pause:
	default:
	}

	sess.IsProcessing = true
	if err := m.logStatus(ctx, sess, "Starting batch processing..."); err != nil {
		return err
	}

	globalCfg, err := m.store.RateConfig(ctx)
	if err != nil {
		return err
	}

	for len(sess.PendingChunks) > 0 {
		// Honor a pause that landed since the last save before
		// dispatching the next chunk.
		live, err := m.refreshPause(ctx, sess)
		if err != nil {
			return err
		}
		if !live {
			return nil
		}
		if !sess.IsProcessing {
			return m.logStatus(ctx, sess, "Paused by user.")
		}

		chunk := sess.PendingChunks[0]

		result, err := m.parseChunk(ctx, sess, chunk)
		if errors.Is(err, errSessionGone) {
			return nil
		}
		if err != nil {
			m.log.WithFields(logrus.Fields{"chunk": chunk.ID, "error": err}).Error("chunk processing failed")
			sess.IsProcessing = false
			if _, perr := m.syncStatus(ctx, sess, "Processing paused due to error. Resume when ready."); perr != nil {
				return perr
			}
			return fmt.Errorf("process chunk %s: %w", chunk.ID, err)
		}

		manifest := m.buildManifest(result, sess, globalCfg)
		if err := m.store.Add(ctx, manifest); err != nil {
			sess.IsProcessing = false
			if _, perr := m.syncStatus(ctx, sess, "Processing paused due to error. Resume when ready."); perr != nil {
				return perr
			}
			return fmt.Errorf("store manifest: %w", err)
		}

		sess.PendingChunks = sess.PendingChunks[1:]
		sess.ProcessedCount++
		live, err = m.syncStatus(ctx, sess, fmt.Sprintf("Manifest %s processed successfully.", manifest.ManifestNo))
		if err != nil {
			return err
		}
		if !live {
			return nil
		}

		if len(sess.PendingChunks) == 0 {
			break
		}

		if !sess.IsProcessing {
			// A pause arrived while the chunk was in flight; the
			// chunk finished, the next one does not start.
			return m.logStatus(ctx, sess, "Paused by user.")
		}

		// Breather between service calls; also the pause/cancel point.
		select {
		case <-ctx.Done():
			sess.IsProcessing = false
			m.logStatus(context.Background(), sess, "Paused by user.")
			return ctx.Err()
		case <-m.pause:
			sess.IsProcessing = false
			return m.logStatus(ctx, sess, "Paused by user.")
		case <-time.After(interChunkPause):
		}
	}

	sess.IsProcessing = false
	return m.logStatus(ctx, sess, "All captured manifests processed.")
}

// parseChunk invokes the document-understanding service with the session's
// strategy. Auto mode tries the default strategy once and escalates to
// hybrid on failure; that single escalation is the only automatic retry.
func (m *Manager) parseChunk(ctx context.Context, sess *model.CaptureSession, chunk model.Chunk) (*parser.Result, error) {
	progress := func(status string) {
		m.log.WithField("chunk", chunk.ID).Debug(status)
	}

	instruction := parser.InstructionSingle
	if len(chunk.Pages) > 1 {
		instruction = parser.InstructionPages
	}
	seq := sess.ProcessedCount + 1

	mode := sess.AIMode
	hybrid := mode == model.ModeHybrid
	label := "Default"
	if hybrid {
		label = "Hybrid"
	}
	if live, err := m.syncStatus(ctx, sess, fmt.Sprintf("Processing Manifest %d... (%s Mode)", seq, label)); err != nil {
		return nil, err
	} else if !live {
		return nil, errSessionGone
	}

	result, err := m.parser.Parse(ctx, chunk.Pages, instruction, hybrid, progress)
	if err == nil || mode != model.ModeAuto {
		return result, err
	}

	if live, serr := m.syncStatus(ctx, sess, "Default failed. Retrying with Hybrid Mode..."); serr != nil {
		return nil, serr
	} else if !live {
		return nil, errSessionGone
	}
	m.log.WithFields(logrus.Fields{"chunk": chunk.ID, "error": err}).Warn("default strategy failed, escalating to hybrid")
	return m.parser.Parse(ctx, chunk.Pages, instruction, true, progress)
}

// buildManifest turns a parse result into a manifest assigned to the
// session folder, with rows priced under the global rate config.
func (m *Manager) buildManifest(result *parser.Result, sess *model.CaptureSession, cfg model.RateConfig) *model.Manifest {
	rows := result.Rows(m.store.NewID, "Item")
	rows, total := tariff.ComputeRows(rows, cfg)

	return &model.Manifest{
		ManifestNo:   result.ManifestNoOr("AUTO"),
		ManifestDate: result.ManifestDateOr(),
		Rows:         rows,
		Config:       cfg,
		TotalAmount:  total,
		ItemCount:    len(rows),
		FolderID:     sess.FolderID,
	}
}

// refreshPause merges externally persisted pause state into the drain's
// session. Another process may have cleared the processing flag (pause) or
// cleared/replaced the session outright since our last save. live reports
// whether the stored session is still ours; a false live means the drain
// must stop without writing anything back.
func (m *Manager) refreshPause(ctx context.Context, sess *model.CaptureSession) (live bool, err error) {
	fresh, err := m.store.CaptureSession(ctx)
	if err != nil {
		return false, err
	}
	if fresh == nil || fresh.ID != sess.ID {
		sess.IsProcessing = false
		return false, nil
	}
	if !fresh.IsProcessing {
		sess.IsProcessing = false
	}
	return true, nil
}

// syncStatus persists a status update without clobbering a pause written
// by another process: the stored processing flag is merged in first, so a
// cleared flag survives the save and stops the drain at the next check.
func (m *Manager) syncStatus(ctx context.Context, sess *model.CaptureSession, status string) (live bool, err error) {
	live, err = m.refreshPause(ctx, sess)
	if err != nil || !live {
		return live, err
	}
	return true, m.logStatus(ctx, sess, status)
}

// logStatus updates the session status line and persists the session.
func (m *Manager) logStatus(ctx context.Context, sess *model.CaptureSession, status string) error {
	sess.StatusLog = status
	return m.store.SaveCaptureSession(ctx, sess)
}
