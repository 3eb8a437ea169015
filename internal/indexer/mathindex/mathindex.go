// Package mathindex is the structural math index: for every parsed math
// expression it stores one posting per subpath, keyed by the rendered path
// and pointing back at the document position the expression occupies.
package mathindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/texparse"
)

// Posting locates one occurrence of a subpath.
type Posting struct {
	DocID    index.DocID
	Position index.Position
	Leaf     string
}

// Store keeps math postings in a SQLite database in WAL mode.
type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening math index %s: %w", path, err)
	}
	// One writer; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating math index schema: %w", err)
	}
	return &Store{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS math_postings (
	path TEXT NOT NULL,
	leaf TEXT NOT NULL,
	doc_id INTEGER NOT NULL,
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_math_postings_path ON math_postings(path);
CREATE INDEX IF NOT EXISTS idx_math_postings_doc ON math_postings(doc_id, position);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Add stores every subpath of one expression at (docID, pos) in a single
// transaction. The caller keeps ownership of subpaths.
func (s *Store) Add(ctx context.Context, docID index.DocID, pos index.Position, subpaths *texparse.Subpaths) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning math index transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO math_postings (path, leaf, doc_id, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing math posting insert: %w", err)
	}
	defer stmt.Close()
	for _, sp := range subpaths.All() {
		if _, err := stmt.ExecContext(ctx, sp.Path(), sp.Leaf, int64(docID), int64(pos)); err != nil {
			return fmt.Errorf("inserting subpath %q: %w", sp.Path(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing math postings: %w", err)
	}
	return nil
}

// Lookup returns the postings of path ordered by document and position.
func (s *Store) Lookup(ctx context.Context, path string) ([]Posting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc_id, position, leaf FROM math_postings WHERE path = ? ORDER BY doc_id, position`, path)
	if err != nil {
		return nil, fmt.Errorf("querying math postings: %w", err)
	}
	defer rows.Close()

	var out []Posting
	for rows.Next() {
		var docID, pos int64
		var p Posting
		if err := rows.Scan(&docID, &pos, &p.Leaf); err != nil {
			return nil, fmt.Errorf("scanning math posting: %w", err)
		}
		p.DocID = index.DocID(docID)
		p.Position = index.Position(pos)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ForDoc returns the number of subpaths stored per position of docID.
func (s *Store) ForDoc(ctx context.Context, docID index.DocID) (map[index.Position]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, COUNT(*) FROM math_postings WHERE doc_id = ? GROUP BY position`, int64(docID))
	if err != nil {
		return nil, fmt.Errorf("querying math postings for doc %d: %w", docID, err)
	}
	defer rows.Close()

	out := make(map[index.Position]int)
	for rows.Next() {
		var pos int64
		var n int
		if err := rows.Scan(&pos, &n); err != nil {
			return nil, fmt.Errorf("scanning math posting count: %w", err)
		}
		out[index.Position(pos)] = n
	}
	return out, rows.Err()
}

// MaxDocID returns the largest document ID with a stored posting, or zero.
func (s *Store) MaxDocID(ctx context.Context) (index.DocID, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(doc_id), 0) FROM math_postings`).Scan(&id); err != nil {
		return 0, fmt.Errorf("querying max math doc id: %w", err)
	}
	return index.DocID(id), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}
