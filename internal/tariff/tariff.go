// Package tariff implements the tiered-slab billing computation.
// It is a pure function library: no state, no I/O, and no validation —
// rates are applied as given, NaN and negatives included.
package tariff

import (
	"math"
	"strconv"
	"strings"

	"github.com/courierdesk/courierdesk/internal/model"
)

// Slab boundaries in billable (integral) kilograms.
const (
	slab1Cap = 10
	slab2Cap = 100
)

// Breakdown is the cumulative slab split of one parcel.
type Breakdown struct {
	S1Weight int
	S2Weight int
	S3Weight int
	Amount   float64
}

// ParcelAmount splits a parcel weight across the slabs and prices each
// kilogram at its slab rate. Fractional weights round up to the next whole
// kilogram first; weights <= 0 yield a zero breakdown.
func ParcelAmount(weight float64, cfg model.RateConfig) Breakdown {
	if weight <= 0 || math.IsNaN(weight) {
		return Breakdown{}
	}
	w := int(math.Ceil(weight))

	var b Breakdown
	b.S1Weight = w
	if b.S1Weight > slab1Cap {
		b.S1Weight = slab1Cap
	}
	if w > slab1Cap {
		b.S2Weight = w - slab1Cap
		if b.S2Weight > slab2Cap-slab1Cap {
			b.S2Weight = slab2Cap - slab1Cap
		}
	}
	if w > slab2Cap {
		b.S3Weight = w - slab2Cap
	}

	b.Amount = float64(b.S1Weight)*cfg.Slab1Rate +
		float64(b.S2Weight)*cfg.Slab2Rate +
		float64(b.S3Weight)*cfg.Slab3Rate
	return b
}

// String renders the slab split as a compact summary like "10+5".
// A zero breakdown renders empty.
func (b Breakdown) String() string {
	var parts []string
	if b.S1Weight > 0 {
		parts = append(parts, strconv.Itoa(b.S1Weight))
	}
	if b.S2Weight > 0 {
		parts = append(parts, strconv.Itoa(b.S2Weight))
	}
	if b.S3Weight > 0 {
		parts = append(parts, strconv.Itoa(b.S3Weight))
	}
	return strings.Join(parts, "+")
}

// ComputeRow returns row with rate, amount and breakdown derived from its
// weight, kind and cfg. Manual-rate rows keep their pinned rate and amount;
// only the breakdown is cleared. Deterministic and side-effect-free: it is
// re-invoked across all rows on every configuration change.
func ComputeRow(row model.LineItem, cfg model.RateConfig) model.LineItem {
	if row.IsManualRate {
		row.Breakdown = ""
		return row
	}

	if row.Kind == model.KindDocument {
		row.Rate = cfg.DocumentRate
		row.Amount = cfg.DocumentRate
		row.Breakdown = ""
		return row
	}

	b := ParcelAmount(row.Weight, cfg)
	row.Rate = cfg.Slab1Rate
	row.Amount = b.Amount
	row.Breakdown = b.String()
	return row
}

// ComputeRows applies ComputeRow to every row and returns the recomputed set
// with its total amount.
func ComputeRows(rows []model.LineItem, cfg model.RateConfig) ([]model.LineItem, float64) {
	out := make([]model.LineItem, len(rows))
	var total float64
	for i, r := range rows {
		out[i] = ComputeRow(r, cfg)
		total += out[i].Amount
	}
	return out, total
}

// Summary aggregates the slab and count statistics of an active row set.
type Summary struct {
	Slab1Weight         int
	Slab2Weight         int
	Slab3Weight         int
	ParcelCount         int
	ParcelCountS1       int
	ParcelCountS2Plus   int
	LightParcelsWeight  int
	HeavyParcelsWeight  int
	HeavyParcelWeights  []int
	DocCount            int
	DocTotal            float64
	TotalBillableWeight int
}

// Summarize computes the per-slab and per-kind aggregates over rows.
// Parcels at or under 10 billable kilograms count as light.
func Summarize(rows []model.LineItem, cfg model.RateConfig) Summary {
	var s Summary
	for _, row := range rows {
		if row.Kind == model.KindDocument {
			s.DocCount++
			s.DocTotal += row.Amount
			continue
		}
		s.ParcelCount++
		rounded := 0
		if row.Weight > 0 && !math.IsNaN(row.Weight) {
			rounded = int(math.Ceil(row.Weight))
		}
		s.TotalBillableWeight += rounded
		b := ParcelAmount(row.Weight, cfg)
		s.Slab1Weight += b.S1Weight
		s.Slab2Weight += b.S2Weight
		s.Slab3Weight += b.S3Weight
		if rounded <= slab1Cap {
			s.ParcelCountS1++
			s.LightParcelsWeight += rounded
		} else {
			s.ParcelCountS2Plus++
			s.HeavyParcelsWeight += rounded
			s.HeavyParcelWeights = append(s.HeavyParcelWeights, rounded)
		}
	}
	return s
}
