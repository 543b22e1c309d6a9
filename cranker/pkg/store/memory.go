package store

import (
	"context"
	"sync"

	"github.com/starlabs/star-fee-routing/cranker/pkg/vault"
)

// Memory is an in-process Store with the same transactional semantics as the
// Postgres implementation. It serializes transactions with a single mutex
// held from Begin to Commit/Rollback, which reproduces the row-lock behavior
// exactly for one process. Used by unit tests and the dry-run mode.
type Memory struct {
	mu   sync.Mutex
	rows map[string]*memoryRow
}

type memoryRow struct {
	record   VaultRecord
	position *vault.HonoraryPosition
	progress vault.Progress
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]*memoryRow)}
}

func (m *Memory) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	return &memoryTx{store: m, staged: make(map[string]*memoryRow)}, nil
}

// memoryTx stages copies and publishes them on Commit. Rollback discards.
type memoryTx struct {
	store  *Memory
	staged map[string]*memoryRow
	done   bool
}

// row returns the staged copy for key, cloning from the store on first touch.
func (tx *memoryTx) row(key string) (*memoryRow, bool) {
	if r, ok := tx.staged[key]; ok {
		return r, r != nil
	}
	src, ok := tx.store.rows[key]
	if !ok {
		return nil, false
	}
	cp := *src
	if src.position != nil {
		pos := *src.position
		cp.position = &pos
	}
	tx.staged[key] = &cp
	return &cp, true
}

func (tx *memoryTx) CreateVault(ctx context.Context, rec VaultRecord) error {
	if _, ok := tx.row(rec.Key); ok {
		return vault.ErrAlreadyInitialized
	}
	tx.staged[rec.Key] = &memoryRow{record: rec}
	return nil
}

func (tx *memoryTx) GetVault(ctx context.Context, key string) (*VaultRecord, error) {
	r, ok := tx.row(key)
	if !ok {
		return nil, vault.ErrVaultNotFound
	}
	rec := r.record
	return &rec, nil
}

func (tx *memoryTx) CreatePosition(ctx context.Context, key string, pos vault.HonoraryPosition) error {
	r, ok := tx.row(key)
	if !ok {
		return vault.ErrVaultNotFound
	}
	if r.position != nil {
		return vault.ErrAlreadyInitialized
	}
	p := pos
	r.position = &p
	return nil
}

func (tx *memoryTx) GetPosition(ctx context.Context, key string) (*vault.HonoraryPosition, error) {
	r, ok := tx.row(key)
	if !ok {
		return nil, vault.ErrVaultNotFound
	}
	if r.position == nil {
		return nil, vault.ErrPositionNotInitialized
	}
	pos := *r.position
	return &pos, nil
}

func (tx *memoryTx) GetProgressForUpdate(ctx context.Context, key string) (*vault.Progress, error) {
	r, ok := tx.row(key)
	if !ok {
		return nil, vault.ErrVaultNotFound
	}
	p := r.progress
	return &p, nil
}

func (tx *memoryTx) SaveProgress(ctx context.Context, key string, p vault.Progress) error {
	r, ok := tx.row(key)
	if !ok {
		return vault.ErrVaultNotFound
	}
	r.progress = p
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	for key, row := range tx.staged {
		tx.store.rows[key] = row
	}
	tx.store.mu.Unlock()
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.store.mu.Unlock()
	return nil
}
