//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testDim = 8

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx, testDim); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testSample(personID, camID, seq int, fill float32) *database.StoredSample {
	emb := make([]float32, testDim)
	for i := range emb {
		emb[i] = fill + float32(i)*0.01
	}
	return &database.StoredSample{
		UID:       uuid.NewString(),
		PersonID:  personID,
		CamID:     camID,
		Seq:       seq,
		Embedding: emb,
		Model:     "resnet50-reid",
		Dim:       testDim,
	}
}

func TestSampleRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewSampleRepository(pool)

	t.Run("SaveAndGet", func(t *testing.T) {
		sample := testSample(1, 0, 0, 0.5)
		if err := repo.Save(ctx, sample); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := repo.Get(ctx, sample.UID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil {
			t.Fatal("sample not found after save")
		}
		if got.PersonID != 1 || got.CamID != 0 || got.Seq != 0 {
			t.Errorf("got %+v, want person 1 cam 0 seq 0", got)
		}
		if len(got.Embedding) != testDim {
			t.Errorf("embedding dim = %d, want %d", len(got.Embedding), testDim)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		got, err := repo.Get(ctx, uuid.NewString())
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for missing sample, got %+v", got)
		}
	})

	t.Run("NextSeq", func(t *testing.T) {
		next, err := repo.NextSeq(ctx, 1, 0)
		if err != nil {
			t.Fatalf("NextSeq: %v", err)
		}
		if next != 1 {
			t.Errorf("next seq = %d, want 1", next)
		}

		next, err = repo.NextSeq(ctx, 99, 0)
		if err != nil {
			t.Fatalf("NextSeq: %v", err)
		}
		if next != 0 {
			t.Errorf("next seq for empty pair = %d, want 0", next)
		}
	})

	t.Run("ListByPersonsAndStats", func(t *testing.T) {
		for _, s := range []*database.StoredSample{
			testSample(2, 0, 0, 1.0),
			testSample(2, 1, 0, 1.1),
			testSample(3, 0, 0, 2.0),
		} {
			if err := repo.Save(ctx, s); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}

		samples, err := repo.ListByPersons(ctx, []int{2, 3})
		if err != nil {
			t.Fatalf("ListByPersons: %v", err)
		}
		if len(samples) != 3 {
			t.Errorf("got %d samples, want 3", len(samples))
		}

		stats, err := repo.Stats(ctx, true)
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Persons != 3 {
			t.Errorf("persons = %d, want 3", stats.Persons)
		}
		if len(stats.PerID) != 3 {
			t.Errorf("per-person rows = %d, want 3", len(stats.PerID))
		}
	})

	t.Run("FindSimilarPostgres", func(t *testing.T) {
		probe := testSample(0, 0, 0, 1.0) // same fill as person 2 cam 0
		samples, distances, err := repo.FindSimilar(ctx, probe.Embedding, 2)
		if err != nil {
			t.Fatalf("FindSimilar: %v", err)
		}
		if len(samples) != 2 {
			t.Fatalf("got %d results, want 2", len(samples))
		}
		if samples[0].PersonID != 2 {
			t.Errorf("nearest person = %d, want 2", samples[0].PersonID)
		}
		if distances[0] > 1e-4 {
			t.Errorf("nearest distance = %f, want ≈0", distances[0])
		}
	})

	t.Run("FindSimilarHNSW", func(t *testing.T) {
		if err := repo.EnableHNSW(ctx); err != nil {
			t.Fatalf("EnableHNSW: %v", err)
		}
		if repo.HNSWCount() == 0 {
			t.Fatal("HNSW index empty after build")
		}

		probe := testSample(0, 0, 0, 2.0) // same fill as person 3
		samples, _, err := repo.FindSimilar(ctx, probe.Embedding, 1)
		if err != nil {
			t.Fatalf("FindSimilar: %v", err)
		}
		if len(samples) != 1 || samples[0].PersonID != 3 {
			t.Errorf("HNSW nearest = %+v, want person 3", samples)
		}
	})

	t.Run("DeleteByPerson", func(t *testing.T) {
		n, err := repo.DeleteByPerson(ctx, 3)
		if err != nil {
			t.Fatalf("DeleteByPerson: %v", err)
		}
		if n != 1 {
			t.Errorf("deleted %d rows, want 1", n)
		}
	})
}
