package reconcile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/tariff"
)

var validate = validator.New()

// StructuralError reports a payload that is not a manifest: unparseable
// JSON or a missing row list. Bulk imports reject the item and continue.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "invalid manifest payload: " + e.Reason
}

// payload is the interchange unit: a JSON object with a mandatory row list
// and optional number, date and rate snapshot.
type payload struct {
	ManifestNo   string            `json:"manifestNo"`
	ManifestDate string            `json:"manifestDate"`
	Rows         []model.LineItem  `json:"rows" validate:"required"`
	Config       *model.RateConfig `json:"config"`
}

// Decode turns one interchange payload into a manifest candidate. Rows are
// recomputed through the tariff engine using the payload's own rate config
// when present, else globalCfg. Missing number and date fall back to
// timestamp-derived placeholders with the given prefix. The candidate has
// no identity yet; admission assigns one.
func (r *Reconciler) Decode(data []byte, prefix string, globalCfg model.RateConfig) (*model.Manifest, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &StructuralError{Reason: "JSON parse error"}
	}
	if err := validate.Struct(&p); err != nil {
		return nil, &StructuralError{Reason: "missing row list"}
	}

	cfg := globalCfg
	if p.Config != nil {
		cfg = *p.Config
	}

	rows := make([]model.LineItem, len(p.Rows))
	copy(rows, p.Rows)
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = r.newID()
		}
		if rows[i].SlNo == 0 {
			rows[i].SlNo = i + 1
		}
	}
	rows, total := tariff.ComputeRows(rows, cfg)

	no := p.ManifestNo
	if no == "" {
		no = fmt.Sprintf("%s-%d", prefix, time.Now().UnixMilli())
	}
	date := p.ManifestDate
	if date == "" {
		date = time.Now().Format("01/02/2006")
	}

	return &model.Manifest{
		ManifestNo:   no,
		ManifestDate: date,
		Rows:         rows,
		Config:       cfg,
		TotalAmount:  total,
		ItemCount:    len(rows),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// DecodeUpdate turns a payload into a replacement for an existing manifest.
// Rows are re-priced under the payload's rate config when it carries one,
// else the manifest's own frozen config. Number and date fall back to the
// existing record's. Identity, creation time and folder are preserved so
// the record keeps its place in history.
func (r *Reconciler) DecodeUpdate(data []byte, existing *model.Manifest) (*model.Manifest, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &StructuralError{Reason: "JSON parse error"}
	}
	if err := validate.Struct(&p); err != nil {
		return nil, &StructuralError{Reason: "missing row list"}
	}

	cfg := existing.Config
	if p.Config != nil {
		cfg = *p.Config
	}

	rows := make([]model.LineItem, len(p.Rows))
	copy(rows, p.Rows)
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = r.newID()
		}
		if rows[i].SlNo == 0 {
			rows[i].SlNo = i + 1
		}
	}
	rows, total := tariff.ComputeRows(rows, cfg)

	updated := *existing
	updated.Rows = rows
	updated.Config = cfg
	updated.TotalAmount = total
	updated.ItemCount = len(rows)
	if p.ManifestNo != "" {
		updated.ManifestNo = p.ManifestNo
	}
	if p.ManifestDate != "" {
		updated.ManifestDate = p.ManifestDate
	}
	return &updated, nil
}
