package db

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/stagescan/internal/aggregate"
	"github.com/banshee-data/stagescan/internal/geometry"
	"github.com/banshee-data/stagescan/internal/scan"
	"github.com/banshee-data/stagescan/internal/stage"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)

func lineResult(id string, completed time.Time) *scan.Result {
	return &scan.Result{
		ID:          id,
		Kind:        scan.Kind1D,
		Line:        &geometry.Line{Axis: stage.Y, OffAxis: 12.5, Start: 0, Extent: 2, Step: 0.5},
		SampleCount: 5,
		Statistic:   aggregate.MeanSquare,
		Values:      []float64{0.1, 0.25, 1.5, 0.25, 0.1},
		StartedAt:   completed.Add(-3 * time.Second),
		CompletedAt: completed,
	}
}

func rasterResult(id string, completed time.Time) *scan.Result {
	return &scan.Result{
		ID:   id,
		Kind: scan.Kind2D,
		Raster: &geometry.Raster{
			Start:  geometry.Vector{1, 2},
			Extent: geometry.Vector{1, 2},
			Step:   geometry.Vector{1, 1},
		},
		SampleCount: 3,
		Statistic:   aggregate.Max,
		Grid:        [][]float64{{1, 2, 3}, {4, 5, 6}},
		StartedAt:   completed.Add(-time.Minute),
		CompletedAt: completed,
	}
}

func TestSaveAndGetScan(t *testing.T) {
	db := newTestDB(t)

	for _, want := range []*scan.Result{lineResult("line-1", t0), rasterResult("raster-1", t0)} {
		if err := db.SaveScan(want); err != nil {
			t.Fatalf("SaveScan(%s): %v", want.ID, err)
		}
		got, err := db.GetScan(want.ID)
		if err != nil {
			t.Fatalf("GetScan(%s): %v", want.ID, err)
		}
		if diff := cmp.Diff(want, got.Result); diff != "" {
			t.Errorf("scan %s mismatch (-want +got):\n%s", want.ID, diff)
		}
		if got.Label != "" {
			t.Errorf("new scan label = %q, want empty", got.Label)
		}
	}
}

func TestSaveScan_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	if err := db.SaveScan(lineResult("dup", t0)); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	if err := db.SaveScan(lineResult("dup", t0)); err == nil {
		t.Error("expected error saving duplicate scan ID")
	}
}

func TestSaveScan_RejectsMissingGeometry(t *testing.T) {
	db := newTestDB(t)

	res := lineResult("no-line", t0)
	res.Line = nil
	if err := db.SaveScan(res); err == nil {
		t.Error("expected error for 1d scan without line")
	}

	res = rasterResult("no-raster", t0)
	res.Raster = nil
	if err := db.SaveScan(res); err == nil {
		t.Error("expected error for 2d scan without raster")
	}

	res = lineResult("bad-kind", t0)
	res.Kind = "3d"
	if err := db.SaveScan(res); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestGetScan_NotFound(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.GetScan("missing"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("GetScan(missing) error = %v, want ErrScanNotFound", err)
	}
}

func TestListScans(t *testing.T) {
	db := newTestDB(t)

	scans, err := db.ListScans(10)
	if err != nil {
		t.Fatalf("ListScans on empty db: %v", err)
	}
	if scans == nil || len(scans) != 0 {
		t.Errorf("ListScans on empty db = %#v, want empty slice", scans)
	}

	for i, res := range []*scan.Result{
		lineResult("oldest", t0),
		rasterResult("newest", t0.Add(2*time.Hour)),
		lineResult("middle", t0.Add(time.Hour)),
	} {
		if err := db.SaveScan(res); err != nil {
			t.Fatalf("SaveScan %d: %v", i, err)
		}
	}

	scans, err = db.ListScans(0)
	if err != nil {
		t.Fatalf("ListScans: %v", err)
	}
	var ids []string
	for _, s := range scans {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"newest", "middle", "oldest"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	newest := scans[0]
	if newest.Kind != scan.Kind2D || newest.Points != 6 || newest.SampleCount != 3 || newest.Statistic != aggregate.Max {
		t.Errorf("summary = %+v", newest)
	}
	if !newest.CompletedAt.Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("CompletedAt = %v", newest.CompletedAt)
	}

	scans, err = db.ListScans(2)
	if err != nil {
		t.Fatalf("ListScans(2): %v", err)
	}
	if len(scans) != 2 {
		t.Errorf("ListScans(2) returned %d scans", len(scans))
	}
}

func TestSetScanLabel(t *testing.T) {
	db := newTestDB(t)
	if err := db.SaveScan(lineResult("labelled", t0)); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	if err := db.SetScanLabel("labelled", "beam waist, focus +0.2"); err != nil {
		t.Fatalf("SetScanLabel: %v", err)
	}
	got, err := db.GetScan("labelled")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.Label != "beam waist, focus +0.2" {
		t.Errorf("Label = %q", got.Label)
	}
	if err := db.SetScanLabel("missing", "x"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("SetScanLabel(missing) error = %v", err)
	}
}

func TestDeleteScan(t *testing.T) {
	db := newTestDB(t)
	if err := db.SaveScan(rasterResult("doomed", t0)); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	if err := db.DeleteScan("doomed"); err != nil {
		t.Fatalf("DeleteScan: %v", err)
	}
	if _, err := db.GetScan("doomed"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("GetScan after delete error = %v", err)
	}
	if err := db.DeleteScan("doomed"); !errors.Is(err, ErrScanNotFound) {
		t.Errorf("second DeleteScan error = %v", err)
	}
}
