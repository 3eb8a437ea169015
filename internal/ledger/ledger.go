// Package ledger records every indexed document in PostgreSQL so that a run
// can be audited and resumed from the outside.
//
// Expected tables:
//
//	indexed_documents(run_id text, doc_id bigint, url text, positions int,
//	                  math_ok int, math_failed int, indexed_at timestamptz,
//	                  primary key (run_id, doc_id))
//	index_runs(run_id text primary key, last_doc_id bigint,
//	           documents bigint, updated_at timestamptz)
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/postgres"
)

const (
	insertDocument = `INSERT INTO indexed_documents
		(run_id, doc_id, url, positions, math_ok, math_failed, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, doc_id) DO NOTHING`

	upsertRun = `INSERT INTO index_runs (run_id, last_doc_id, documents, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (run_id) DO UPDATE
		SET last_doc_id = EXCLUDED.last_doc_id,
		    documents = index_runs.documents + 1,
		    updated_at = EXCLUDED.updated_at`
)

// Execer is satisfied by *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Ledger is a pipeline.Hook writing one row per document and keeping the
// run summary current, both in one transaction.
type Ledger struct {
	runID string
	inTx  func(ctx context.Context, fn func(Execer) error) error
	now   func() time.Time
}

func New(client *postgres.Client, runID string) *Ledger {
	return newLedger(runID, func(ctx context.Context, fn func(Execer) error) error {
		return client.InTx(ctx, func(tx *sql.Tx) error { return fn(tx) })
	})
}

func newLedger(runID string, inTx func(ctx context.Context, fn func(Execer) error) error) *Ledger {
	return &Ledger{runID: runID, inTx: inTx, now: time.Now}
}

func (l *Ledger) AfterDocument(ctx context.Context, res pipeline.Result) error {
	at := l.now().UTC()
	return l.inTx(ctx, func(ex Execer) error {
		if _, err := ex.ExecContext(ctx, insertDocument,
			l.runID, int64(res.DocID), res.URL, res.Positions, res.MathOK, res.MathFail, at,
		); err != nil {
			return fmt.Errorf("recording doc %d: %w", res.DocID, err)
		}
		if _, err := ex.ExecContext(ctx, upsertRun, l.runID, int64(res.DocID), at); err != nil {
			return fmt.Errorf("updating run %s: %w", l.runID, err)
		}
		return nil
	})
}
