package graph

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Tx is a write transaction. It is not safe for concurrent use.
type Tx struct {
	store *Store
	sqlTx *sql.Tx
	data  *TransactionData
	nodes map[int64]*Node
	done  bool
}

// Data returns the changes recorded so far.
func (tx *Tx) Data() *TransactionData { return tx.data }

func (tx *Tx) check() error {
	if tx.done {
		return ErrTxDone
	}
	return nil
}

func (tx *Tx) release() {
	tx.done = true
	<-tx.store.writer
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// node returns the transaction's view of the node with id.
func (tx *Tx) node(ctx context.Context, id int64) (*Node, error) {
	if tx.data.IsDeleted(id) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}
	if n, ok := tx.nodes[id]; ok {
		return n, nil
	}
	n, err := loadNode(ctx, tx.sqlTx, id)
	if err != nil {
		return nil, err
	}
	tx.nodes[id] = n
	return n, nil
}

func (tx *Tx) touch(ctx context.Context, id int64) error {
	if _, err := tx.sqlTx.ExecContext(ctx, `UPDATE nodes SET modified_at = ? WHERE id = ?`, now(), id); err != nil {
		return fmt.Errorf("updating node %d: %w", id, err)
	}
	return nil
}

// Node returns the node with id as seen by this transaction.
func (tx *Tx) Node(ctx context.Context, id int64) (*Node, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	return tx.node(ctx, id)
}

// CreateNode creates a node carrying the given labels.
func (tx *Tx) CreateNode(ctx context.Context, labels ...string) (*Node, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	for _, l := range labels {
		if l == "" {
			return nil, ErrEmptyName
		}
	}

	ts := now()
	res, err := tx.sqlTx.ExecContext(ctx, `INSERT INTO nodes (created_at, modified_at) VALUES (?, ?)`, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}

	n := newNode(id)
	tx.nodes[id] = n
	tx.data.nodeCreated(n)

	for _, l := range labels {
		if err := tx.addLabel(ctx, n, l); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddLabel adds label to the node. Adding a label the node has is a no-op.
func (tx *Tx) AddLabel(ctx context.Context, id int64, label string) error {
	if err := tx.check(); err != nil {
		return err
	}
	if label == "" {
		return ErrEmptyName
	}
	n, err := tx.node(ctx, id)
	if err != nil {
		return err
	}
	if err := tx.addLabel(ctx, n, label); err != nil {
		return err
	}
	return tx.touch(ctx, id)
}

func (tx *Tx) addLabel(ctx context.Context, n *Node, label string) error {
	if n.HasLabel(label) {
		return nil
	}
	if _, err := tx.sqlTx.ExecContext(ctx,
		`INSERT INTO node_labels (node_id, label) VALUES (?, ?)`, n.id, label); err != nil {
		return fmt.Errorf("adding label %q to node %d: %w", label, n.id, err)
	}
	tx.data.labelAssigned(n, label)
	n.addLabel(label)
	return nil
}

// RemoveLabel removes label from the node. Removing a missing label is a no-op.
func (tx *Tx) RemoveLabel(ctx context.Context, id int64, label string) error {
	if err := tx.check(); err != nil {
		return err
	}
	n, err := tx.node(ctx, id)
	if err != nil {
		return err
	}
	if !n.HasLabel(label) {
		return nil
	}
	if _, err := tx.sqlTx.ExecContext(ctx,
		`DELETE FROM node_labels WHERE node_id = ? AND label = ?`, id, label); err != nil {
		return fmt.Errorf("removing label %q from node %d: %w", label, id, err)
	}
	tx.data.labelRemoved(n, label)
	n.removeLabel(label)
	return tx.touch(ctx, id)
}

// SetProperty sets a property. The value must be JSON-encodable; a nil
// value removes the property.
func (tx *Tx) SetProperty(ctx context.Context, id int64, key string, value any) error {
	if err := tx.check(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyName
	}
	if value == nil {
		return tx.RemoveProperty(ctx, id, key)
	}
	n, err := tx.node(ctx, id)
	if err != nil {
		return err
	}
	v, raw, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("node %d property %q: %w", id, key, err)
	}
	if _, err := tx.sqlTx.ExecContext(ctx, `
		INSERT INTO node_properties (node_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(node_id, key) DO UPDATE SET value = excluded.value
	`, id, key, raw); err != nil {
		return fmt.Errorf("setting property %q on node %d: %w", key, id, err)
	}
	tx.data.propertyAssigned(n, key, v)
	n.props[key] = v
	return tx.touch(ctx, id)
}

// RemoveProperty removes a property. Removing a missing property is a no-op.
func (tx *Tx) RemoveProperty(ctx context.Context, id int64, key string) error {
	if err := tx.check(); err != nil {
		return err
	}
	n, err := tx.node(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := n.props[key]; !ok {
		return nil
	}
	if _, err := tx.sqlTx.ExecContext(ctx,
		`DELETE FROM node_properties WHERE node_id = ? AND key = ?`, id, key); err != nil {
		return fmt.Errorf("removing property %q from node %d: %w", key, id, err)
	}
	tx.data.propertyRemoved(n, key)
	delete(n.props, key)
	return tx.touch(ctx, id)
}

// DeleteNode deletes the node with all its labels and properties. Views of
// the node keep their last state.
func (tx *Tx) DeleteNode(ctx context.Context, id int64) error {
	if err := tx.check(); err != nil {
		return err
	}
	n, err := tx.node(ctx, id)
	if err != nil {
		return err
	}
	for _, stmt := range []string{
		`DELETE FROM node_properties WHERE node_id = ?`,
		`DELETE FROM node_labels WHERE node_id = ?`,
		`DELETE FROM nodes WHERE id = ?`,
	} {
		if _, err := tx.sqlTx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting node %d: %w", id, err)
		}
	}
	tx.data.nodeDeleted(n)
	return nil
}

// Commit runs the listeners' BeforeCommit hooks, commits, and then runs
// AfterCommit, or AfterRollback if the commit failed. The write lock is
// released before the after hooks run.
func (tx *Tx) Commit(ctx context.Context) error {
	if err := tx.check(); err != nil {
		return err
	}

	listeners := tx.store.currentListeners()
	states := make([]any, len(listeners))
	for i, l := range listeners {
		state, err := l.BeforeCommit(ctx, tx.data)
		if err != nil {
			tx.store.logger.Errorf("transaction listener failed before commit: %v", err)
			state = nil
		}
		states[i] = state
	}

	err := tx.sqlTx.Commit()
	tx.release()

	if err != nil {
		for i, l := range listeners {
			l.AfterRollback(ctx, tx.data, states[i])
		}
		return fmt.Errorf("committing transaction: %w", err)
	}
	for i, l := range listeners {
		l.AfterCommit(ctx, tx.data, states[i])
	}
	return nil
}

// Rollback discards the transaction. Listeners are not notified.
func (tx *Tx) Rollback() error {
	if err := tx.check(); err != nil {
		return err
	}
	err := tx.sqlTx.Rollback()
	tx.release()
	if err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}
