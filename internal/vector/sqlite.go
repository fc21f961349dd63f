package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/store"
	"gwi.com/kbchat/internal/utils"
)

// Chunk is an already indexed question/answer pair.
type Chunk struct {
	ID        string
	ModelID   store.ID
	Q         string
	A         string
	Status    string
	Embedding []float32
}

// SQLiteIndex is a local knowledge chunk store. Distances are computed in process,
// so it is meant for development and small knowledge bases.
type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteIndex(dataSourceName string, logger *zap.Logger) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	idx := &SQLiteIndex{db: db, logger: logger}
	if err = idx.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS model_data (
        id TEXT PRIMARY KEY,
        model_id TEXT NOT NULL,
        q TEXT NOT NULL,
        a TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL DEFAULT 'waiting',
        embedding_json TEXT -- JSON array of float32
    );

    CREATE INDEX IF NOT EXISTS model_data_model_status ON model_data (model_id, status);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Insert stores a chunk that was indexed elsewhere.
func (s *SQLiteIndex) Insert(ctx context.Context, c Chunk) error {
	if c.ID == "" {
		c.ID = store.NewID().String()
	}
	if c.Status == "" {
		c.Status = StatusReady
	}
	embeddingBytes, err := json.Marshal(c.Embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO model_data (id, model_id, q, a, status, embedding_json) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.ModelID.String(), c.Q, c.A, c.Status, string(embeddingBytes))
	if err != nil {
		return fmt.Errorf("failed to execute model_data insert: %w", err)
	}
	return nil
}

func (s *SQLiteIndex) Search(ctx context.Context, q Query) ([]Row, error) {
	const op = "vector.SQLiteIndex.Search"
	q = q.Normalize()
	if err := q.validate(); err != nil {
		return nil, apperr.New(apperr.Validation, op, err, "model_id", q.ModelID.String())
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, q, a, embedding_json FROM model_data WHERE status = ? AND model_id = ?",
		StatusReady, q.ModelID.String())
	if err != nil {
		return nil, apperr.New(apperr.Storage, op, fmt.Errorf("failed to query model_data: %w", err), "model_id", q.ModelID.String())
	}
	defer rows.Close()

	var scored []Row
	for rows.Next() {
		var (
			r             Row
			embeddingJSON sql.NullString
			embedding     []float32
		)
		if err := rows.Scan(&r.ID, &r.Q, &r.A, &embeddingJSON); err != nil {
			return nil, apperr.New(apperr.Storage, op, fmt.Errorf("failed to scan model_data row: %w", err), "model_id", q.ModelID.String())
		}
		if !embeddingJSON.Valid || embeddingJSON.String == "" {
			s.logger.Warn("Skipping chunk with empty embedding", zap.String("chunk_id", r.ID))
			continue
		}
		if err := json.Unmarshal([]byte(embeddingJSON.String), &embedding); err != nil {
			s.logger.Warn("Skipping chunk with unreadable embedding", zap.String("chunk_id", r.ID), zap.Error(err))
			continue
		}

		distance, err := utils.CosineDistance(q.Vector, embedding)
		if err != nil {
			s.logger.Warn("Skipping chunk with mismatched embedding", zap.String("chunk_id", r.ID), zap.Error(err))
			continue
		}
		if distance < q.Similarity {
			r.Distance = distance
			scored = append(scored, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.Storage, op, fmt.Errorf("error iterating model_data: %w", err), "model_id", q.ModelID.String())
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})
	if len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	return scored, nil
}
