package doccache

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps entries in a single table keyed by document id.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, db *pgxpool.Pool) (*PostgresStore, error) {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS locker_files (
			doc_id TEXT PRIMARY KEY,
			blob   BYTEA NOT NULL
		)
	`)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, docID string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, `SELECT blob FROM locker_files WHERE doc_id=$1`, docID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, docID string, blob []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO locker_files (doc_id, blob)
		VALUES ($1, $2)
		ON CONFLICT (doc_id) DO UPDATE SET blob = EXCLUDED.blob
	`, docID, blob)
	return err
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DELETE FROM locker_files`)
	return err
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
