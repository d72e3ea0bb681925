// Package parser defines the document-understanding service contract and
// the defaulting rules applied to its results.
package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/courierdesk/courierdesk/internal/model"
)

// Default instruction strings sent with parse requests.
const (
	InstructionSingle = "Extract billing data."
	InstructionPages  = "Extract billing data from these images. Treat them as sequential pages of one manifest."
)

// Parser is the capability consumed by the import and capture pipelines.
// Implementations submit a page set for extraction using either the fast
// default strategy or the slower hybrid strategy.
type Parser interface {
	Parse(ctx context.Context, pages []model.Page, instruction string, hybrid bool, onProgress func(status string)) (*Result, error)
}

// Item is one extracted line item. Every field is optional; Rows applies
// the defaulting centrally.
type Item struct {
	SlNo        int     `json:"slNo,omitempty"`
	SerialNo    string  `json:"serialNo,omitempty"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Result is the extraction outcome for one page set.
type Result struct {
	ManifestNo   string   `json:"manifestNo,omitempty"`
	ManifestDate string   `json:"manifestDate,omitempty"`
	Items        []Item   `json:"items"`
	Errors       []string `json:"errors,omitempty"`
}

// Rows converts the extracted items into line items, filling the gaps the
// service may leave: sequence numbers, AWB serial placeholders, a stock
// description, parcel as the default kind and zero weight. Rates are not
// computed here; callers run the rows through the tariff engine.
func (r *Result) Rows(newID func() string, description string) []model.LineItem {
	rows := make([]model.LineItem, 0, len(r.Items))
	for i, item := range r.Items {
		row := model.LineItem{
			ID:          newID(),
			SlNo:        item.SlNo,
			SerialNo:    item.SerialNo,
			Description: item.Description,
			Kind:        model.KindParcel,
			Weight:      item.Weight,
		}
		if row.SlNo == 0 {
			row.SlNo = i + 1
		}
		if row.SerialNo == "" {
			row.SerialNo = fmt.Sprintf("AWB-%d", 1000+i)
		}
		if row.Description == "" {
			row.Description = description
		}
		if item.Type == string(model.KindDocument) {
			row.Kind = model.KindDocument
		}
		rows = append(rows, row)
	}
	return rows
}

// ManifestNoOr returns the extracted manifest number, or a timestamp-derived
// placeholder with the given prefix when the service omitted it.
func (r *Result) ManifestNoOr(prefix string) string {
	if r.ManifestNo != "" {
		return r.ManifestNo
	}
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixMilli())
}

// ManifestDateOr returns the extracted manifest date, or today's date when
// the service omitted it.
func (r *Result) ManifestDateOr() string {
	if r.ManifestDate != "" {
		return r.ManifestDate
	}
	return time.Now().Format("01/02/2006")
}
