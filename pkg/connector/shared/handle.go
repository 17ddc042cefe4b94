package shared

import (
	"context"
	"sync"

	"github.com/ajitpratap0/hdm/pkg/connector/core"
	"github.com/ajitpratap0/hdm/pkg/dao"
	"github.com/ajitpratap0/hdm/pkg/errors"
)

// DBHandle opens a dao backend on first use and keeps it for the life of
// the adapter.
type DBHandle struct {
	Backend    string
	Connection string
	Params     core.Params

	mu sync.Mutex
	db *dao.DB
}

// Get returns the open database, connecting on the first call.
func (h *DBHandle) Get(ctx context.Context) (*dao.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}
	conn, err := h.Params.Connection(h.Connection)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "resolve connection").
			WithDetail("adapter", h.Params.Name)
	}
	db, err := dao.Open(ctx, h.Backend, conn, h.Params.Settings)
	if err != nil {
		return nil, err
	}
	h.db = db
	return db, nil
}

// Close closes the database if it was opened.
func (h *DBHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
