package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"
	"github.com/marsik/reid-mine/internal/database"
	"github.com/pgvector/pgvector-go"
)

// SampleRepository provides PostgreSQL-backed sample storage with an optional
// in-memory HNSW index for retrieval.
type SampleRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewSampleRepository creates a new PostgreSQL sample repository.
func NewSampleRepository(pool *Pool) *SampleRepository {
	return &SampleRepository{pool: pool}
}

// Save stores a sample. The UID must already be assigned.
func (r *SampleRepository) Save(ctx context.Context, sample *database.StoredSample) error {
	query := `
		INSERT INTO samples (uid, person_id, cam_id, seq, embedding, model, dim)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	vec := pgvector.NewVector(sample.Embedding)
	if _, err := r.pool.Exec(ctx, query,
		sample.UID, sample.PersonID, sample.CamID, sample.Seq, vec, sample.Model, sample.Dim); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	// Keep the index in sync when it is live.
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	if r.hnswEnabled && r.hnswIndex != nil {
		if err := r.hnswIndex.Add(sample); err != nil {
			return fmt.Errorf("update HNSW index: %w", err)
		}
	}
	return nil
}

// Get retrieves a sample by UID, returns nil if not found.
func (r *SampleRepository) Get(ctx context.Context, uid string) (*database.StoredSample, error) {
	query := `
		SELECT uid, person_id, cam_id, seq, embedding, model, dim, created_at
		FROM samples
		WHERE uid = $1
	`

	var sample database.StoredSample
	var vec pgvector.Vector

	err := r.pool.QueryRow(ctx, query, uid).Scan(
		&sample.UID,
		&sample.PersonID,
		&sample.CamID,
		&sample.Seq,
		&vec,
		&sample.Model,
		&sample.Dim,
		&sample.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sample: %w", err)
	}

	sample.Embedding = vec.Slice()
	return &sample, nil
}

// NextSeq returns the next free sequence number for a (person, camera) pair.
func (r *SampleRepository) NextSeq(ctx context.Context, personID, camID int) (int, error) {
	var next int
	err := r.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM samples WHERE person_id = $1 AND cam_id = $2",
		personID, camID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("query next seq: %w", err)
	}
	return next, nil
}

// Count returns the total number of samples stored.
func (r *SampleRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM samples").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// Stats returns store-wide counts, optionally broken down per identity.
func (r *SampleRepository) Stats(ctx context.Context, perPerson bool) (*database.StoreStats, error) {
	var stats database.StoreStats
	err := r.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(DISTINCT person_id), COUNT(DISTINCT cam_id) FROM samples").
		Scan(&stats.Samples, &stats.Persons, &stats.Cameras)
	if err != nil {
		return nil, fmt.Errorf("query store stats: %w", err)
	}

	if !perPerson {
		return &stats, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT person_id, COUNT(*), COUNT(DISTINCT cam_id)
		FROM samples
		GROUP BY person_id
		ORDER BY person_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query per-person stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ps database.PersonStats
		if err := rows.Scan(&ps.PersonID, &ps.Samples, &ps.Cameras); err != nil {
			return nil, fmt.Errorf("scan person stats: %w", err)
		}
		stats.PerID = append(stats.PerID, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person stats: %w", err)
	}

	return &stats, nil
}

// ListPersons returns the distinct identities in the store with their sample
// counts, ordered by identity.
func (r *SampleRepository) ListPersons(ctx context.Context) ([]database.PersonStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT person_id, COUNT(*), COUNT(DISTINCT cam_id)
		FROM samples
		GROUP BY person_id
		ORDER BY person_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.PersonStats
	for rows.Next() {
		var ps database.PersonStats
		if err := rows.Scan(&ps.PersonID, &ps.Samples, &ps.Cameras); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// ListByPersons returns all samples of the given identities, ordered by
// person, camera and sequence so batch assembly is deterministic.
func (r *SampleRepository) ListByPersons(ctx context.Context, personIDs []int) ([]database.StoredSample, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT uid, person_id, cam_id, seq, embedding, model, dim, created_at
		FROM samples
		WHERE person_id = ANY($1)
		ORDER BY person_id, cam_id, seq
	`

	ids := make([]int64, len(personIDs))
	for i, id := range personIDs {
		ids[i] = int64(id)
	}

	rows, err := r.pool.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query samples by persons: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// ListByCamera returns all samples captured by one camera (matching=true) or
// by every other camera (matching=false). Used to split query/gallery sets.
func (r *SampleRepository) ListByCamera(ctx context.Context, camID int, matching bool) ([]database.StoredSample, error) {
	op := "="
	if !matching {
		op = "<>"
	}
	query := fmt.Sprintf(`
		SELECT uid, person_id, cam_id, seq, embedding, model, dim, created_at
		FROM samples
		WHERE cam_id %s $1
		ORDER BY person_id, cam_id, seq
	`, op)

	rows, err := r.pool.Query(ctx, query, camID)
	if err != nil {
		return nil, fmt.Errorf("query samples by camera: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// All returns every stored sample. Used to build the HNSW index and for
// evaluation runs.
func (r *SampleRepository) All(ctx context.Context) ([]database.StoredSample, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT uid, person_id, cam_id, seq, embedding, model, dim, created_at
		FROM samples
		ORDER BY person_id, cam_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("query all samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// DeleteByPerson removes every sample of one identity. The HNSW index does
// not support removal; rebuild it afterwards if enabled.
func (r *SampleRepository) DeleteByPerson(ctx context.Context, personID int) (int64, error) {
	res, err := r.pool.Exec(ctx, "DELETE FROM samples WHERE person_id = $1", personID)
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// FindSimilar finds the samples nearest to the query embedding.
// Uses the in-memory HNSW index when enabled, otherwise PostgreSQL.
func (r *SampleRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]database.StoredSample, []float64, error) {
	r.hnswMu.RLock()
	hnswEnabled := r.hnswEnabled && r.hnswIndex != nil
	r.hnswMu.RUnlock()

	if hnswEnabled {
		r.hnswMu.RLock()
		defer r.hnswMu.RUnlock()
		return r.hnswIndex.Search(embedding, limit)
	}

	return r.findSimilarPostgres(ctx, embedding, limit)
}

// findSimilarPostgres ranks samples server-side with the pgvector L2
// operator, raising ef_search for better recall.
func (r *SampleRepository) findSimilarPostgres(ctx context.Context, embedding []float32, limit int) ([]database.StoredSample, []float64, error) {
	tx, err := r.pool.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT uid, person_id, cam_id, seq, embedding, model, dim, created_at,
		       embedding <-> $1::vector AS distance
		FROM samples
		ORDER BY distance
		LIMIT $2
	`

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar samples: %w", err)
	}
	defer rows.Close()

	var samples []database.StoredSample
	var distances []float64
	for rows.Next() {
		var sample database.StoredSample
		var v pgvector.Vector
		var dist float64
		if err := rows.Scan(&sample.UID, &sample.PersonID, &sample.CamID, &sample.Seq,
			&v, &sample.Model, &sample.Dim, &sample.CreatedAt, &dist); err != nil {
			return nil, nil, fmt.Errorf("scan similar sample: %w", err)
		}
		sample.Embedding = v.Slice()
		samples = append(samples, sample)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar samples: %w", err)
	}

	return samples, distances, nil
}

// EnableHNSW builds the in-memory index from the store and switches
// FindSimilar over to it.
func (r *SampleRepository) EnableHNSW(ctx context.Context) error {
	samples, err := r.All(ctx)
	if err != nil {
		return fmt.Errorf("loading samples for HNSW build: %w", err)
	}

	idx := database.NewHNSWIndex()
	if err := idx.BuildFromSamples(samples); err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}

	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswIndex = idx
	r.hnswEnabled = true
	return nil
}

// HNSWCount returns the number of indexed samples, 0 when disabled.
func (r *SampleRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if !r.hnswEnabled || r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}

// scanSamples reads rows of the canonical sample column list.
func scanSamples(rows *sql.Rows) ([]database.StoredSample, error) {
	var samples []database.StoredSample
	for rows.Next() {
		var sample database.StoredSample
		var vec pgvector.Vector
		if err := rows.Scan(&sample.UID, &sample.PersonID, &sample.CamID, &sample.Seq,
			&vec, &sample.Model, &sample.Dim, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Embedding = vec.Slice()
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}
