package vector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gwi.com/kbchat/internal/apperr"
)

const DefaultTable = "modelData"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type PgVector struct {
	db    *sql.DB
	query string
}

func NewPgVector(connString, table string) (*PgVector, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("unable to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return NewPgVectorWithDB(db, table)
}

// NewPgVectorWithDB uses an already opened pool.
func NewPgVectorWithDB(db *sql.DB, table string) (*PgVector, error) {
	q, err := searchSQL(table)
	if err != nil {
		return nil, err
	}
	return &PgVector{db: db, query: q}, nil
}

func searchSQL(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifierRe.MatchString(table) {
		return "", fmt.Errorf("invalid vector table name %q", table)
	}
	// Validated above; left unquoted so postgres folds it to lower case.
	return fmt.Sprintf(`
		SELECT id, q, a, vector <=> $1 AS distance
		FROM %s
		WHERE status = $2 AND model_id = $3 AND vector <=> $1 < $4
		ORDER BY vector <=> $1
		LIMIT $5
	`, table), nil
}

func (pg *PgVector) Search(ctx context.Context, q Query) ([]Row, error) {
	const op = "vector.PgVector.Search"
	q = q.Normalize()
	if err := q.validate(); err != nil {
		return nil, apperr.New(apperr.Validation, op, err, "model_id", q.ModelID.String())
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := pg.db.QueryContext(ctx, pg.query, pgvector.NewVector(q.Vector), StatusReady, q.ModelID.String(), q.Similarity, q.Limit)
	if err != nil {
		return nil, apperr.New(apperr.Storage, op, fmt.Errorf("failed to execute search query: %w", err), "model_id", q.ModelID.String())
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.Q, &r.A, &r.Distance); err != nil {
			return nil, apperr.New(apperr.Storage, op, fmt.Errorf("failed to scan row: %w", err), "model_id", q.ModelID.String())
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.New(apperr.Storage, op, fmt.Errorf("error iterating rows: %w", err), "model_id", q.ModelID.String())
	}
	return out, nil
}

func (pg *PgVector) Close() error {
	return pg.db.Close()
}
