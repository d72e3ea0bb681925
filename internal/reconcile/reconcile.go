// Package reconcile decides how candidate manifests enter the record store:
// schema-checked decoding, duplicate detection against active history, and
// explicit conflict resolution for both single and bulk imports.
package reconcile

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/courierdesk/courierdesk/internal/model"
)

// Store is the slice of the record store the reconciler needs.
type Store interface {
	FindByManifestNo(ctx context.Context, manifestNo string) (*model.Manifest, error)
	Add(ctx context.Context, m *model.Manifest) error
	AddBatch(ctx context.Context, ms []*model.Manifest) error
	Override(ctx context.Context, existingID string, m *model.Manifest) error
}

// Action is one of the three duplicate resolutions.
type Action string

const (
	// ActionKeepBoth admits the candidate under a fresh identity alongside
	// the existing record.
	ActionKeepBoth Action = "keep_both"
	// ActionOverride removes the existing record and admits the candidate
	// in its place.
	ActionOverride Action = "override"
	// ActionDiscard drops the candidate without mutating anything.
	ActionDiscard Action = "discard"
)

// ParseAction converts a user-supplied string into an Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionKeepBoth, ActionOverride, ActionDiscard:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown resolution %q (use keep_both, override or discard)", s)
}

// Conflict pairs a candidate with the active record sharing its number.
type Conflict struct {
	Existing  *model.Manifest
	Candidate *model.Manifest
}

// Reconciler applies import decisions against a store.
type Reconciler struct {
	store Store
	newID func() string
	log   *logrus.Entry
}

// New returns a Reconciler. newID supplies fresh identities for admitted
// candidates and their rows.
func New(store Store, newID func() string, log *logrus.Entry) *Reconciler {
	return &Reconciler{store: store, newID: newID, log: log}
}

// FindConflict scans active history for a record with the candidate's
// manifest number. Nil means the candidate may be added unconditionally.
func (r *Reconciler) FindConflict(ctx context.Context, candidate *model.Manifest) (*model.Manifest, error) {
	return r.store.FindByManifestNo(ctx, candidate.ManifestNo)
}

// Resolve applies an explicit duplicate resolution. It returns the record
// admitted to history, or nil for a discard. Discard performs no mutation
// and is safe to repeat.
func (r *Reconciler) Resolve(ctx context.Context, action Action, c Conflict) (*model.Manifest, error) {
	switch action {
	case ActionDiscard:
		r.log.WithField("manifestNo", c.Candidate.ManifestNo).Info("import discarded")
		return nil, nil

	case ActionKeepBoth:
		admitted := *c.Candidate
		admitted.ID = r.newID()
		if err := r.store.Add(ctx, &admitted); err != nil {
			return nil, err
		}
		r.log.WithField("manifestNo", admitted.ManifestNo).Info("imported as a new copy")
		return &admitted, nil

	case ActionOverride:
		admitted := *c.Candidate
		admitted.ID = r.newID()
		if err := r.store.Override(ctx, c.Existing.ID, &admitted); err != nil {
			return nil, err
		}
		r.log.WithField("manifestNo", admitted.ManifestNo).Info("existing record overwritten")
		return &admitted, nil
	}
	return nil, fmt.Errorf("unknown resolution %q", action)
}

// Import admits a candidate with no active duplicate. Callers must run
// FindConflict first; a detected conflict goes through Resolve instead.
func (r *Reconciler) Import(ctx context.Context, candidate *model.Manifest) error {
	if candidate.ID == "" {
		candidate.ID = r.newID()
	}
	return r.store.Add(ctx, candidate)
}
