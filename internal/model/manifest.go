// Package model defines the core manifest and billing data types.
package model

import "time"

// ItemKind distinguishes parcel line items from flat-rated documents.
type ItemKind string

const (
	KindParcel   ItemKind = "Parcel"
	KindDocument ItemKind = "Document"
)

// RateConfig holds the per-slab parcel rates and the flat document rate.
// Two instances exist at runtime: the global default applied to new imports,
// and the per-manifest copy frozen into each saved manifest.
type RateConfig struct {
	Slab1Rate    float64 `json:"parcelSlab1Rate"`
	Slab2Rate    float64 `json:"parcelSlab2Rate"`
	Slab3Rate    float64 `json:"parcelSlab3Rate"`
	DocumentRate float64 `json:"documentRate"`
}

// DefaultRateConfig returns the stock rates seeded into a fresh store.
func DefaultRateConfig() RateConfig {
	return RateConfig{
		Slab1Rate:    3,
		Slab2Rate:    2,
		Slab3Rate:    1,
		DocumentRate: 5,
	}
}

// LineItem is one billing row of a manifest. Rate, Amount and Breakdown are
// derived from Weight, Kind and the active RateConfig unless IsManualRate
// pins them.
type LineItem struct {
	ID           string   `json:"id"`
	SlNo         int      `json:"slNo"`
	SerialNo     string   `json:"serialNo"`
	Description  string   `json:"description"`
	Kind         ItemKind `json:"type"`
	Weight       float64  `json:"weight"`
	Rate         float64  `json:"rate"`
	Amount       float64  `json:"amount"`
	IsManualRate bool     `json:"isManualRate"`
	Breakdown    string   `json:"breakdown"`
}

// Manifest is one billing document. ManifestNo is the natural business key
// used for duplicate detection; it is advisory only and never enforced
// unique by the store.
type Manifest struct {
	ID           string     `json:"id"`
	ManifestNo   string     `json:"manifestNo"`
	ManifestDate string     `json:"manifestDate"`
	Rows         []LineItem `json:"rows"`
	Config       RateConfig `json:"config"`
	TotalAmount  float64    `json:"totalAmount"`
	ItemCount    int        `json:"itemCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	FolderID     string     `json:"folderId,omitempty"`
	DeletedAt    *time.Time `json:"deletedAt,omitempty"`
}

// Folder groups manifests. Deleting a folder detaches its manifests.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Preferences holds the user display settings.
type Preferences struct {
	Theme string  `json:"theme"`
	Scale float64 `json:"scale"`
}

// DefaultPreferences returns the stock display settings.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Scale: 1.0}
}
