package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/courierdesk/courierdesk/internal/logging"
	"github.com/courierdesk/courierdesk/internal/model"
	"github.com/courierdesk/courierdesk/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, s.NewID, logging.Component("test")), s
}

func addManifest(t *testing.T, s *store.SQLiteStore, no string, total float64) *model.Manifest {
	t.Helper()
	m := &model.Manifest{
		ManifestNo:   no,
		ManifestDate: "01/10/2026",
		Rows:         []model.LineItem{{ID: "r", SlNo: 1, Kind: model.KindParcel, Weight: 15, Amount: total}},
		Config:       model.DefaultRateConfig(),
		TotalAmount:  total,
		ItemCount:    1,
	}
	if err := s.Add(context.Background(), m); err != nil {
		t.Fatalf("add: %v", err)
	}
	return m
}

func payloadJSON(no string) []byte {
	return []byte(fmt.Sprintf(`{
		"manifestNo": %q,
		"manifestDate": "02/01/2026",
		"rows": [
			{"serialNo": "AWB-1", "description": "Box", "type": "Parcel", "weight": 15},
			{"serialNo": "AWB-2", "description": "Papers", "type": "Document"}
		]
	}`, no))
}

func TestDecodeRecomputesRows(t *testing.T) {
	r, _ := newTestReconciler(t)
	cfg := model.DefaultRateConfig()

	m, err := r.Decode(payloadJSON("MF-1"), "IMP", cfg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ManifestNo != "MF-1" || m.ItemCount != 2 {
		t.Errorf("manifest = %+v", m)
	}
	// 15kg parcel at 3/2/1 = 40; document flat 5
	if m.Rows[0].Amount != 40 || m.Rows[0].Breakdown != "10+5" {
		t.Errorf("parcel row = %+v", m.Rows[0])
	}
	if m.Rows[1].Amount != 5 {
		t.Errorf("document row = %+v", m.Rows[1])
	}
	if m.TotalAmount != 45 {
		t.Errorf("total = %v, want 45", m.TotalAmount)
	}
	if m.Rows[0].ID == "" || m.Rows[0].SlNo != 1 || m.Rows[1].SlNo != 2 {
		t.Errorf("row identity defaults not applied: %+v", m.Rows)
	}
	if m.ID != "" {
		t.Errorf("candidate should have no identity before admission")
	}
}

func TestDecodePayloadConfigWins(t *testing.T) {
	r, _ := newTestReconciler(t)

	data := []byte(`{
		"manifestNo": "MF-1",
		"rows": [{"type": "Parcel", "weight": 5}],
		"config": {"parcelSlab1Rate": 10, "parcelSlab2Rate": 0, "parcelSlab3Rate": 0, "documentRate": 0}
	}`)
	m, err := r.Decode(data, "IMP", model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Rows[0].Amount != 50 {
		t.Errorf("payload config ignored: amount = %v", m.Rows[0].Amount)
	}
	if m.Config.Slab1Rate != 10 {
		t.Errorf("config snapshot = %+v", m.Config)
	}
}

func TestDecodeDefaultsNumberAndDate(t *testing.T) {
	r, _ := newTestReconciler(t)

	m, err := r.Decode([]byte(`{"rows": []}`), "IMP", model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ManifestNo == "" || m.ManifestDate == "" {
		t.Errorf("placeholders missing: %+v", m)
	}
}

func TestDecodeStructuralErrors(t *testing.T) {
	r, _ := newTestReconciler(t)
	cfg := model.DefaultRateConfig()

	if _, err := r.Decode([]byte(`not json`), "IMP", cfg); err == nil {
		t.Error("expected error for unparseable payload")
	}
	_, err := r.Decode([]byte(`{"manifestNo": "MF-1"}`), "IMP", cfg)
	if err == nil {
		t.Fatal("expected error for missing rows")
	}
	if _, ok := err.(*StructuralError); !ok {
		t.Errorf("expected StructuralError, got %T", err)
	}
}

func TestFindConflict(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	existing := addManifest(t, s, "MF-1", 40)
	c := &model.Manifest{ManifestNo: "MF-1"}

	got, err := r.FindConflict(ctx, c)
	if err != nil || got == nil || got.ID != existing.ID {
		t.Fatalf("conflict = %v, err %v", got, err)
	}

	none, err := r.FindConflict(ctx, &model.Manifest{ManifestNo: "MF-2"})
	if err != nil || none != nil {
		t.Errorf("unexpected conflict %v, err %v", none, err)
	}
}

func TestResolveKeepBoth(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	existing := addManifest(t, s, "MF-1", 40)
	candidate := &model.Manifest{ManifestNo: "MF-1", TotalAmount: 99, Config: model.DefaultRateConfig()}

	admitted, err := r.Resolve(ctx, ActionKeepBoth, Conflict{Existing: existing, Candidate: candidate})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if admitted == nil || admitted.ID == existing.ID {
		t.Fatalf("expected fresh identity, got %+v", admitted)
	}

	list, _ := s.List(ctx, store.ListParams{All: true})
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if _, err := s.Get(ctx, existing.ID); err != nil {
		t.Errorf("original removed: %v", err)
	}
}

func TestResolveOverride(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	existing := addManifest(t, s, "MF-1", 40)
	candidate := &model.Manifest{ManifestNo: "MF-1", TotalAmount: 99, Config: model.DefaultRateConfig()}

	admitted, err := r.Resolve(ctx, ActionOverride, Conflict{Existing: existing, Candidate: candidate})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	list, _ := s.List(ctx, store.ListParams{All: true})
	if len(list) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(list))
	}
	if list[0].ID != admitted.ID || list[0].TotalAmount != 99 {
		t.Errorf("override left wrong record: %+v", list[0])
	}
}

func TestResolveDiscardIdempotent(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	existing := addManifest(t, s, "MF-1", 40)
	candidate := &model.Manifest{ManifestNo: "MF-1", TotalAmount: 99}
	conflict := Conflict{Existing: existing, Candidate: candidate}

	for i := 0; i < 2; i++ {
		admitted, err := r.Resolve(ctx, ActionDiscard, conflict)
		if err != nil || admitted != nil {
			t.Fatalf("discard #%d: %v %v", i+1, admitted, err)
		}
	}

	list, _ := s.List(ctx, store.ListParams{All: true})
	if len(list) != 1 || list[0].ID != existing.ID || list[0].TotalAmount != 40 {
		t.Errorf("discard mutated history: %+v", list)
	}
}

func TestBulkImportDuplicateInBatch(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	items := []FileItem{
		{Name: "a.json", Data: payloadJSON("MF-1")},
		{Name: "b.json", Data: payloadJSON("MF-2")},
		{Name: "c.json", Data: payloadJSON("MF-1")}, // duplicates a.json
		{Name: "d.json", Data: payloadJSON("MF-3")},
		{Name: "e.json", Data: payloadJSON("MF-4")},
	}

	outcomes, committed, err := r.BulkImport(ctx, items, "", model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if committed != 4 {
		t.Errorf("committed = %d, want 4", committed)
	}
	if len(outcomes) != 5 {
		t.Fatalf("expected 5 outcomes, got %d", len(outcomes))
	}
	if outcomes[2].Status != StatusWarning {
		t.Errorf("intra-batch duplicate outcome = %+v", outcomes[2])
	}

	list, _ := s.List(ctx, store.ListParams{All: true})
	if len(list) != 4 {
		t.Errorf("history grew by %d, want 4", len(list))
	}
}

func TestBulkImportIsolatesBadItems(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	addManifest(t, s, "MF-DUP", 40)

	items := []FileItem{
		{Name: "good.json", Data: payloadJSON("MF-NEW")},
		{Name: "corrupt.json", Data: []byte(`{{{`)},
		{Name: "norows.json", Data: []byte(`{"manifestNo": "MF-X"}`)},
		{Name: "dup.json", Data: payloadJSON("MF-DUP")},
	}

	outcomes, committed, err := r.BulkImport(ctx, items, "", model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if committed != 1 {
		t.Errorf("committed = %d, want 1", committed)
	}
	want := []OutcomeStatus{StatusSuccess, StatusError, StatusError, StatusWarning}
	for i, o := range outcomes {
		if o.Status != want[i] {
			t.Errorf("outcome[%d] = %s (%s), want %s", i, o.Status, o.Message, want[i])
		}
	}
}

func TestBulkImportAssignsFolder(t *testing.T) {
	r, s := newTestReconciler(t)
	ctx := context.Background()

	f, _ := s.AddFolder(ctx, "Imported")
	_, _, err := r.BulkImport(ctx, []FileItem{{Name: "a.json", Data: payloadJSON("MF-1")}}, f.ID, model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	list, _ := s.List(ctx, store.ListParams{FolderID: f.ID})
	if len(list) != 1 {
		t.Errorf("manifest not in folder")
	}
}

func TestBulkImportCap(t *testing.T) {
	r, _ := newTestReconciler(t)

	items := make([]FileItem, MaxBatchFiles+1)
	for i := range items {
		items[i] = FileItem{Name: fmt.Sprintf("%d.json", i), Data: payloadJSON(fmt.Sprintf("MF-%d", i))}
	}
	if _, _, err := r.BulkImport(context.Background(), items, "", model.DefaultRateConfig()); err == nil {
		t.Error("expected error for oversized batch")
	}
}

func TestDecodeUpdateKeepsIdentityAndConfig(t *testing.T) {
	r, s := newTestReconciler(t)
	existing := addManifest(t, s, "MF-1", 40)
	existing.Config = model.RateConfig{Slab1Rate: 10, Slab2Rate: 4, Slab3Rate: 2, DocumentRate: 7}
	existing.FolderID = "f1"

	updated, err := r.DecodeUpdate([]byte(`{
		"rows": [{"serialNo": "AWB-9", "description": "Crate", "type": "Parcel", "weight": 12}]
	}`), existing)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}

	if updated.ID != existing.ID || updated.FolderID != "f1" {
		t.Errorf("identity not preserved: %+v", updated)
	}
	if updated.ManifestNo != "MF-1" || updated.ManifestDate != "01/10/2026" {
		t.Errorf("metadata not preserved: %q %q", updated.ManifestNo, updated.ManifestDate)
	}
	// 12 kg under the frozen config: 10*10 + 2*4.
	if updated.TotalAmount != 108 {
		t.Errorf("total = %v, want 108 under the manifest's own rates", updated.TotalAmount)
	}
	if updated.ItemCount != 1 {
		t.Errorf("itemCount = %d", updated.ItemCount)
	}
}

func TestDecodeUpdatePayloadOverrides(t *testing.T) {
	r, s := newTestReconciler(t)
	existing := addManifest(t, s, "MF-1", 40)

	updated, err := r.DecodeUpdate([]byte(`{
		"manifestNo": "MF-1-REV",
		"manifestDate": "03/01/2026",
		"config": {"parcelSlab1Rate": 1, "parcelSlab2Rate": 1, "parcelSlab3Rate": 1, "documentRate": 1},
		"rows": [{"serialNo": "AWB-9", "type": "Document"}]
	}`), existing)
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if updated.ManifestNo != "MF-1-REV" || updated.ManifestDate != "03/01/2026" {
		t.Errorf("metadata not replaced: %+v", updated)
	}
	if updated.TotalAmount != 1 {
		t.Errorf("total = %v, want 1 under the payload config", updated.TotalAmount)
	}
}

func TestDecodeUpdateStructuralError(t *testing.T) {
	r, s := newTestReconciler(t)
	existing := addManifest(t, s, "MF-1", 40)

	if _, err := r.DecodeUpdate([]byte(`{"manifestNo": "x"}`), existing); err == nil {
		t.Fatal("expected error for payload without rows")
	}
}

func TestBulkImportToFolderCreatesFolderOnCommit(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)

	items := []FileItem{
		{Name: "a.json", Data: payloadJSON("MF-1")},
		{Name: "b.json", Data: payloadJSON("MF-2")},
	}
	_, committed, folder, err := r.BulkImportToFolder(ctx, s, "January Billing", items, model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if committed != 2 || folder == nil {
		t.Fatalf("committed = %d, folder = %v", committed, folder)
	}
	if folder.Name != "January Billing" {
		t.Errorf("folder name = %q", folder.Name)
	}

	got, err := s.List(ctx, store.ListParams{FolderID: folder.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("manifests in folder = %d, want 2", len(got))
	}
}

func TestBulkImportToFolderSkipsFolderWhenNothingCommits(t *testing.T) {
	ctx := context.Background()
	r, s := newTestReconciler(t)
	addManifest(t, s, "MF-1", 40)

	items := []FileItem{
		{Name: "dup.json", Data: payloadJSON("MF-1")},
		{Name: "bad.json", Data: []byte(`{"manifestNo": "MF-2"}`)},
	}
	outcomes, committed, folder, err := r.BulkImportToFolder(ctx, s, "Stray", items, model.DefaultRateConfig())
	if err != nil {
		t.Fatalf("bulk import: %v", err)
	}
	if committed != 0 || folder != nil {
		t.Fatalf("committed = %d, folder = %v, want no folder", committed, folder)
	}
	if outcomes[0].Status != StatusWarning || outcomes[1].Status != StatusError {
		t.Errorf("outcomes = %+v", outcomes)
	}

	folders, err := s.ListFolders(ctx)
	if err != nil {
		t.Fatalf("list folders: %v", err)
	}
	if len(folders) != 0 {
		t.Fatalf("stray folder left behind: %+v", folders)
	}
}
