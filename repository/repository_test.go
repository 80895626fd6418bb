package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"mediaCompressor/models"
)

func newPendingTask(t *testing.T, repo Repository) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:           uuid.New().String(),
		MediaKind:    models.KindImage,
		Settings:     models.Settings{Quality: 80, AdaptiveMode: true},
		Status:       models.StatusPending,
		OriginalSize: 1000,
	}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

// harness is one store under test. setClock replaces the store's time source.
type harness struct {
	repo     Repository
	setClock func(now func() time.Time)
}

type harnessFactory func(t *testing.T) harness

// runRepositorySuite checks the lifecycle guarantees every Repository must give.
func runRepositorySuite(t *testing.T, newHarness harnessFactory) {
	tests := []struct {
		name string
		run  func(t *testing.T, newHarness harnessFactory)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetUnknown", testGetUnknown},
		{"CompleteLifecycle", testCompleteLifecycle},
		{"RejectsSkippedStates", testRejectsSkippedStates},
		{"FailRequiresMessage", testFailRequiresMessage},
		{"ConcurrentClaimSingleWinner", testConcurrentClaimSingleWinner},
		{"ConcurrentTerminalWritesSingleWinner", testConcurrentTerminalWritesSingleWinner},
		{"SnapshotsAreIsolated", testSnapshotsAreIsolated},
		{"ListStaleAndExpired", testListStaleAndExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, newHarness)
		})
	}
}

func testCreateAndGet(t *testing.T, newHarness harnessFactory) {
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	got, err := repo.GetTask(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("Expected pending, got %s", got.Status)
	}
	if got.CompressedSize != nil || got.ErrorMessage != "" {
		t.Error("Pending task must not carry result fields")
	}

	if err := repo.CreateTask(context.Background(), task); !errors.Is(err, models.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}
}

func testGetUnknown(t *testing.T, newHarness harnessFactory) {
	h := newHarness(t)
	repo := h.repo
	if _, err := repo.GetTask(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := repo.Transition(context.Background(), "missing", models.StatusProcessing, models.Update{}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func testCompleteLifecycle(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	if _, err := repo.Transition(ctx, task.ID, models.StatusProcessing, models.Update{Progress: intPtr(10)}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 50); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 30); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	got, _ := repo.GetTask(ctx, task.ID)
	if got.Progress != 50 {
		t.Errorf("Progress must not decrease, got %d", got.Progress)
	}

	if err := repo.UpdateProgress(ctx, task.ID, 100); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got, _ = repo.GetTask(ctx, task.ID)
	if got.Progress != 99 {
		t.Errorf("Progress must stay below 100 while processing, got %d", got.Progress)
	}

	done, err := repo.Transition(ctx, task.ID, models.StatusCompleted, models.Update{
		CompressedSize: int64Ptr(250),
		Report:         &models.Report{Analysis: models.Analysis{ImportantRegions: 2}},
	})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if done.Progress != 100 {
		t.Errorf("Expected progress 100, got %d", done.Progress)
	}
	if done.CompressionRatio == nil || *done.CompressionRatio != 75 {
		t.Errorf("Expected ratio 75, got %v", done.CompressionRatio)
	}
	if done.ErrorMessage != "" {
		t.Error("Completed task must not carry an error message")
	}

	stored, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Report == nil || stored.Report.Analysis.ImportantRegions != 2 {
		t.Errorf("Expected the report to be stored with the task, got %+v", stored.Report)
	}
	if stored.CompletedAt == nil || stored.StartedAt == nil {
		t.Error("Expected start and completion times to be stored")
	}

	if _, err := repo.Transition(ctx, task.ID, models.StatusProcessing, models.Update{}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on resurrection, got %v", err)
	}
	if _, err := repo.Transition(ctx, task.ID, models.StatusFailed, models.Update{ErrorMessage: "late"}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on second terminal write, got %v", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 10); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for progress after completion, got %v", err)
	}
}

func testRejectsSkippedStates(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	_, err := repo.Transition(ctx, task.ID, models.StatusCompleted, models.Update{CompressedSize: int64Ptr(1)})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for pending->completed, got %v", err)
	}
	if err := repo.UpdateProgress(ctx, task.ID, 20); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for progress on pending task, got %v", err)
	}
}

func testFailRequiresMessage(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	if _, err := repo.Transition(ctx, task.ID, models.StatusProcessing, models.Update{}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := repo.Transition(ctx, task.ID, models.StatusFailed, models.Update{}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for empty message, got %v", err)
	}

	failed, err := repo.Transition(ctx, task.ID, models.StatusFailed, models.Update{
		ErrorKind:    models.ErrorKindCodecFatal,
		ErrorMessage: "decode input: unknown format",
	})
	if err != nil {
		t.Fatalf("fail transition failed: %v", err)
	}
	if failed.CompressedSize != nil {
		t.Error("Failed task must not carry compressed size")
	}
	if failed.Progress == 100 {
		t.Error("Failed task must not reach progress 100")
	}
}

func testConcurrentClaimSingleWinner(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.Transition(ctx, task.ID, models.StatusProcessing, models.Update{}); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("Expected exactly one claim winner, got %d", wins)
	}
}

func testConcurrentTerminalWritesSingleWinner(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)
	if _, err := repo.Transition(ctx, task.ID, models.StatusProcessing, models.Update{}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	var completed, failed int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := repo.Transition(ctx, task.ID, models.StatusCompleted, models.Update{CompressedSize: int64Ptr(10)}); err == nil {
				atomic.AddInt32(&completed, 1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := repo.Transition(ctx, task.ID, models.StatusFailed, models.Update{ErrorMessage: "lost"}); err == nil {
				atomic.AddInt32(&failed, 1)
			}
		}()
	}
	wg.Wait()

	if completed+failed != 1 {
		t.Errorf("Expected a single terminal write, got completed=%d failed=%d", completed, failed)
	}
}

func testSnapshotsAreIsolated(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo
	task := newPendingTask(t, repo)

	first, _ := repo.GetTask(ctx, task.ID)
	first.Status = models.StatusFailed
	first.Settings.Quality = 1

	second, _ := repo.GetTask(ctx, task.ID)
	if second.Status != models.StatusPending || second.Settings.Quality != 80 {
		t.Error("Mutating a snapshot must not change the stored task")
	}
}

func testListStaleAndExpired(t *testing.T, newHarness harnessFactory) {
	ctx := context.Background()
	h := newHarness(t)
	repo := h.repo

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.setClock(func() time.Time { return clock })

	stale := newPendingTask(t, repo)
	if _, err := repo.Transition(ctx, stale.ID, models.StatusProcessing, models.Update{}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	done := newPendingTask(t, repo)
	if _, err := repo.Transition(ctx, done.ID, models.StatusProcessing, models.Update{}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if _, err := repo.Transition(ctx, done.ID, models.StatusCompleted, models.Update{CompressedSize: int64Ptr(5)}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	clock = clock.Add(time.Hour)
	fresh := newPendingTask(t, repo)
	if _, err := repo.Transition(ctx, fresh.ID, models.StatusProcessing, models.Update{}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	staleTasks, _ := repo.ListStale(ctx, models.StatusProcessing, clock.Add(-time.Minute))
	if len(staleTasks) != 1 || staleTasks[0].ID != stale.ID {
		t.Errorf("Expected only the stale task, got %d tasks", len(staleTasks))
	}

	expired, _ := repo.ListExpired(ctx, clock.Add(-time.Minute))
	if len(expired) != 1 || expired[0].ID != done.ID {
		t.Errorf("Expected only the completed task, got %d tasks", len(expired))
	}

	if err := repo.DeleteTask(ctx, done.ID); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if _, err := repo.GetTask(ctx, done.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
