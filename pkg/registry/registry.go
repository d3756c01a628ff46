// Package registry persists swap records in SQLite so a restarted coordinator
// can pick up in-flight swaps exactly where they stopped. Every record is
// written before the ledger operation it describes, never after.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"swapsage-bridge/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when no swap exists for the given id.
var ErrNotFound = errors.New("swap not found")

const swapColumns = `id, source_chain, dest_chain, initiator_addr, recipient_addr,
	source_asset, dest_asset, source_amount, dest_amount, hashlock, secret,
	source_timelock, dest_timelock, status, source_lock_id, dest_lock_id,
	source_tx_ref, dest_tx_ref, failure_detail, created, last_updated`

// Registry is the durable swap store.
type Registry struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the registry database and runs pending
// migrations.
func Open(path string) (*Registry, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(conn, "migrations"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Registry{conn: conn}, nil
}

func (r *Registry) Close() error {
	return r.conn.Close()
}

// Put writes the full swap record, inserting or replacing by id. LastUpdated
// is stamped here so every persisted transition carries its write time.
func (r *Registry) Put(ctx context.Context, s *types.Swap) error {
	s.LastUpdated = time.Now().UTC()
	_, err := r.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO swaps (`+swapColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, string(s.SourceChain), string(s.DestChain), s.InitiatorAddr, s.RecipientAddr,
		s.SourceAsset, s.DestAsset, s.SourceAmount, s.DestAmount, s.Hashlock, s.Secret,
		s.SourceTimelock.UTC(), s.DestTimelock.UTC(), string(s.Status),
		s.SourceLockID, s.DestLockID, s.SourceTxRef, s.DestTxRef, s.FailureDetail,
		s.Created.UTC(), s.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("storing swap %s: %w", s.ID, err)
	}
	return nil
}

// Get returns the swap with the given id, or ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*types.Swap, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+swapColumns+` FROM swaps WHERE id = ?`, id)
	s, err := scanSwap(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("swap %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying swap %s: %w", id, err)
	}
	return s, nil
}

// ListByAddress returns swaps where the address is initiator or recipient,
// most recent first.
func (r *Registry) ListByAddress(ctx context.Context, addr string) ([]*types.Swap, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+swapColumns+` FROM swaps
		 WHERE initiator_addr = ? OR recipient_addr = ?
		 ORDER BY created DESC`, addr, addr)
	if err != nil {
		return nil, fmt.Errorf("listing swaps for %s: %w", addr, err)
	}
	defer rows.Close()
	return collectSwaps(rows)
}

// ListActive returns every swap that has not reached a terminal status,
// oldest first. This is the watcher's work queue.
func (r *Registry) ListActive(ctx context.Context) ([]*types.Swap, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+swapColumns+` FROM swaps
		 WHERE status NOT IN (?, ?, ?, ?)
		 ORDER BY created ASC`,
		string(types.StatusClaimed), string(types.StatusRefunded),
		string(types.StatusFailed), string(types.StatusExpired))
	if err != nil {
		return nil, fmt.Errorf("listing active swaps: %w", err)
	}
	defer rows.Close()
	return collectSwaps(rows)
}

// UpdateStatus moves a swap to a new status, recording optional failure
// detail. Writing the status a record already holds is a no-op, so retried
// transitions stay idempotent.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status types.SwapStatus, detail string) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE swaps SET status = ?, failure_detail = ?, last_updated = ?
		WHERE id = ?`,
		string(status), detail, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating swap %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("swap %s: %w", id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSwap(row scanner) (*types.Swap, error) {
	var s types.Swap
	var sourceChain, destChain, status string
	err := row.Scan(
		&s.ID, &sourceChain, &destChain, &s.InitiatorAddr, &s.RecipientAddr,
		&s.SourceAsset, &s.DestAsset, &s.SourceAmount, &s.DestAmount, &s.Hashlock, &s.Secret,
		&s.SourceTimelock, &s.DestTimelock, &status, &s.SourceLockID, &s.DestLockID,
		&s.SourceTxRef, &s.DestTxRef, &s.FailureDetail, &s.Created, &s.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	s.SourceChain = types.ChainKind(sourceChain)
	s.DestChain = types.ChainKind(destChain)
	s.Status = types.SwapStatus(status)
	return &s, nil
}

func collectSwaps(rows *sql.Rows) ([]*types.Swap, error) {
	var swaps []*types.Swap
	for rows.Next() {
		s, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning swap: %w", err)
		}
		swaps = append(swaps, s)
	}
	return swaps, rows.Err()
}
