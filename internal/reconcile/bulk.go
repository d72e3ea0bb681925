package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/courierdesk/courierdesk/internal/model"
)

// MaxBatchFiles caps one multi-file bulk import.
const MaxBatchFiles = 30

// FileItem is one candidate payload in a bulk import.
type FileItem struct {
	Name string
	Data []byte
}

// OutcomeStatus classifies one bulk import item.
type OutcomeStatus string

const (
	StatusSuccess OutcomeStatus = "success"
	StatusWarning OutcomeStatus = "warning"
	StatusError   OutcomeStatus = "error"
)

// Outcome reports what happened to one input item.
type Outcome struct {
	FileName string        `json:"fileName"`
	Status   OutcomeStatus `json:"status"`
	Message  string        `json:"message"`
}

// BulkImport reconciles many candidate payloads at once. Each item is
// decoded, checked against both active history and the candidates already
// accepted in this batch, and staged on success. Staged manifests commit in
// a single batch at the end, so a batch is never partially visible.
// Per-item failures never abort the remaining items.
//
// Returns one outcome per input item plus the number of committed manifests.
func (r *Reconciler) BulkImport(ctx context.Context, items []FileItem, folderID string, globalCfg model.RateConfig) ([]Outcome, int, error) {
	if len(items) > MaxBatchFiles {
		return nil, 0, fmt.Errorf("too many files: %d (maximum %d per batch)", len(items), MaxBatchFiles)
	}

	outcomes := make([]Outcome, 0, len(items))
	var staged []*model.Manifest
	stagedNos := make(map[string]bool)

	for _, item := range items {
		candidate, err := r.Decode(item.Data, "IMP", globalCfg)
		if err != nil {
			var serr *StructuralError
			if errors.As(err, &serr) {
				outcomes = append(outcomes, Outcome{FileName: item.Name, Status: StatusError, Message: serr.Reason})
				continue
			}
			return nil, 0, err
		}

		existing, err := r.store.FindByManifestNo(ctx, candidate.ManifestNo)
		if err != nil {
			return nil, 0, err
		}
		if existing != nil || stagedNos[candidate.ManifestNo] {
			outcomes = append(outcomes, Outcome{FileName: item.Name, Status: StatusWarning, Message: "Duplicate skipped"})
			continue
		}

		candidate.ID = r.newID()
		candidate.FolderID = folderID
		staged = append(staged, candidate)
		stagedNos[candidate.ManifestNo] = true
		outcomes = append(outcomes, Outcome{FileName: item.Name, Status: StatusSuccess, Message: "Imported"})
	}

	if err := r.store.AddBatch(ctx, staged); err != nil {
		return nil, 0, fmt.Errorf("commit batch: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"items":     len(items),
		"committed": len(staged),
	}).Info("bulk import complete")
	return outcomes, len(staged), nil
}

// FolderStore creates folders under caller-chosen identities.
type FolderStore interface {
	AddFolderWithID(ctx context.Context, id, name string) (*model.Folder, error)
}

// BulkImportToFolder reconciles items into a folder that is created only
// when at least one manifest commits, so an all-duplicate or all-corrupt
// batch leaves no empty folder behind. The returned folder is nil when
// nothing committed.
func (r *Reconciler) BulkImportToFolder(ctx context.Context, fs FolderStore, folderName string, items []FileItem, globalCfg model.RateConfig) ([]Outcome, int, *model.Folder, error) {
	folderID := r.newID()
	outcomes, committed, err := r.BulkImport(ctx, items, folderID, globalCfg)
	if err != nil || committed == 0 {
		return outcomes, committed, nil, err
	}
	folder, err := fs.AddFolderWithID(ctx, folderID, folderName)
	if err != nil {
		return outcomes, committed, nil, fmt.Errorf("create folder %q: %w", folderName, err)
	}
	return outcomes, committed, folder, nil
}
