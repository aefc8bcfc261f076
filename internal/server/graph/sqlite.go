package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/systemshift/graphdex/internal/logging"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrTxDone       = errors.New("transaction has already been committed or rolled back")
	ErrEmptyName    = errors.New("label and property key must not be empty")
)

// TransactionListener observes committed and failed transactions.
//
// BeforeCommit runs while the transaction is still open and sees its final
// state. Its result is handed back to AfterCommit, or to AfterRollback when
// the commit fails. A BeforeCommit error is logged; the commit proceeds and
// the listener receives a nil state.
type TransactionListener interface {
	BeforeCommit(ctx context.Context, data *TransactionData) (any, error)
	AfterCommit(ctx context.Context, data *TransactionData, state any)
	AfterRollback(ctx context.Context, data *TransactionData, state any)
}

// NodeReader loads single nodes.
type NodeReader interface {
	GetNode(ctx context.Context, id int64) (*Node, error)
}

// Store is a property graph kept in SQLite. Write transactions are
// serialized; reads outside a transaction see committed state.
type Store struct {
	db     *sql.DB
	logger logging.Logger

	writer chan struct{}

	mu        sync.RWMutex
	listeners []TransactionListener
}

// NewSQLite opens or creates the store at dbPath.
func NewSQLite(ctx context.Context, dbPath string, logger logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &Store{
		db:     db,
		logger: logger,
		writer: make(chan struct{}, 1),
	}, nil
}

// Close closes the SQLite connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Register adds a transaction listener.
func (s *Store) Register(l TransactionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Unregister removes a listener added with Register.
func (s *Store) Unregister(l TransactionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.listeners {
		if x == l {
			s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
			return
		}
	}
}

func (s *Store) currentListeners() []TransactionListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TransactionListener(nil), s.listeners...)
}

// Begin starts a write transaction, waiting for any running one to finish.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		<-s.writer
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{
		store: s,
		sqlTx: sqlTx,
		data:  newTransactionData(),
		nodes: make(map[int64]*Node),
	}, nil
}

// Update runs fn in a transaction, committing when it returns nil.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warningf("rolling back transaction: %v", rbErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// GetNode retrieves a committed node by ID
func (s *Store) GetNode(ctx context.Context, id int64) (*Node, error) {
	return loadNode(ctx, s.db, id)
}

// NodeIDs returns the ids of all nodes carrying label, in ascending order.
func (s *Store) NodeIDs(ctx context.Context, label string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id FROM node_labels WHERE label = ? ORDER BY node_id`, label)
	if err != nil {
		return nil, fmt.Errorf("listing nodes with label %q: %w", label, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadNode(ctx context.Context, q querier, id int64) (*Node, error) {
	var exists int64
	err := q.QueryRowContext(ctx, `SELECT id FROM nodes WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %d: %w", id, err)
	}

	n := newNode(id)

	rows, err := q.QueryContext(ctx, `SELECT label FROM node_labels WHERE node_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("loading labels of node %d: %w", id, err)
	}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			rows.Close()
			return nil, err
		}
		n.labels = append(n.labels, label)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = q.QueryContext(ctx, `SELECT key, value FROM node_properties WHERE node_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("loading properties of node %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		v, err := decodeValue([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("node %d property %q: %w", id, key, err)
		}
		n.props[key] = v
	}
	return n, rows.Err()
}
