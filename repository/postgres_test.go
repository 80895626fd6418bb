package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"mediaCompressor/database"
	"mediaCompressor/models"
)

// TestPostgresRepo runs the shared suite against a real database. The tasks table is
// truncated before every case, so point TEST_DATABASE_URL at a scratch database.
func TestPostgresRepo(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, url, 8)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(db.Close)

	if err := NewPostgresRepo(db).EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}

	runRepositorySuite(t, func(t *testing.T) harness {
		if _, err := db.Pool.Exec(ctx, `TRUNCATE compression_tasks`); err != nil {
			t.Fatalf("TRUNCATE failed: %v", err)
		}
		repo := NewPostgresRepo(db)
		return harness{
			repo:     repo,
			setClock: func(now func() time.Time) { repo.now = now },
		}
	})
}

// fakeRow scans fixed column values the way pgx assigns them.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.values))
	}
	for i, v := range r.values {
		reflect.ValueOf(dest[i]).Elem().Set(reflect.ValueOf(v))
	}
	return nil
}

func taskRow(report []byte, compressed *int64, completedAt *time.Time) fakeRow {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ratio *float64
	if compressed != nil {
		r := models.Ratio(1000, *compressed)
		ratio = &r
	}
	return fakeRow{values: []any{
		"t1", "trace-1", "photo.png", models.KindImage, 80, true, 0.0,
		models.StatusCompleted, 100, int64(1000), compressed, ratio,
		models.ErrorKind(""), "",
		report, created, created, &created, completedAt,
	}}
}

func TestScanTask_WithoutReport(t *testing.T) {
	task, err := scanTask(taskRow(nil, nil, nil))
	if err != nil {
		t.Fatalf("scanTask failed: %v", err)
	}
	if task.Report != nil {
		t.Errorf("Expected no report for a NULL column, got %+v", task.Report)
	}
	if task.CompressedSize != nil || task.CompletedAt != nil {
		t.Error("Expected NULL columns to stay nil")
	}
	if task.Settings.Quality != 80 || !task.Settings.AdaptiveMode || task.MediaKind != models.KindImage {
		t.Errorf("Unexpected settings %+v kind %s", task.Settings, task.MediaKind)
	}
}

func TestScanTask_WithReport(t *testing.T) {
	bitrate := 6.0
	want := &models.Report{
		Analysis: models.Analysis{AdaptiveMode: true, ImportantRegions: 2, TargetBitrate: &bitrate},
		Partitions: []models.Partition{
			{Role: models.PartitionImportant, Codec: "jpeg", Quality: 95, Bytes: 120, Area: 400},
			{Role: models.PartitionBackground, Codec: "jpeg", Quality: 70, Bytes: 300, Area: 1600},
		},
		Degradations: []string{"oracle_failure: timeout"},
	}
	data, err := marshalReport(want)
	if err != nil {
		t.Fatalf("marshalReport failed: %v", err)
	}
	size := int64(250)
	done := time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC)

	task, err := scanTask(taskRow(data, &size, &done))
	if err != nil {
		t.Fatalf("scanTask failed: %v", err)
	}
	if !reflect.DeepEqual(task.Report, want) {
		got, _ := json.Marshal(task.Report)
		t.Errorf("Report changed in storage: got %s", got)
	}
	if task.CompressedSize == nil || *task.CompressedSize != 250 || task.CompressionRatio == nil || *task.CompressionRatio != 75 {
		t.Errorf("Unexpected result fields size=%v ratio=%v", task.CompressedSize, task.CompressionRatio)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(done) {
		t.Errorf("Expected completion time %v, got %v", done, task.CompletedAt)
	}
}

func TestScanTask_CorruptReport(t *testing.T) {
	if _, err := scanTask(taskRow([]byte("{broken"), nil, nil)); err == nil {
		t.Error("Expected an error for an undecodable report")
	}
}

func TestMarshalReport_Nil(t *testing.T) {
	data, err := marshalReport(nil)
	if err != nil || data != nil {
		t.Errorf("Expected NULL for a missing report, got %q %v", data, err)
	}
	if _, err := scanTask(fakeRow{err: errors.New("conn closed")}); err == nil {
		t.Error("Expected scan errors to surface")
	}
}
