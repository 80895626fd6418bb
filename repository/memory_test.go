package repository

import (
	"testing"
	"time"
)

func TestMemoryRepo(t *testing.T) {
	runRepositorySuite(t, func(t *testing.T) harness {
		repo := NewMemoryRepo()
		return harness{
			repo:     repo,
			setClock: func(now func() time.Time) { repo.now = now },
		}
	})
}
