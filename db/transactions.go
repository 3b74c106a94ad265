package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

// transitionsKept bounds the history kept per entity.
const transitionsKept = 500

var ErrNoTransition = errors.New("no recorded transition")

// StartTransaction starts a new database transaction.
func StartTransaction(db *sql.DB) (*sql.Tx, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}

// CommitTransaction commits the given transaction.
func CommitTransaction(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the given transaction.
func RollbackTransaction(tx *sql.Tx) {
	tx.Rollback()
}

// SaveSnapshot replaces every stored attribute of controller with attrs.
func SaveSnapshot(db *sql.DB, controller string, attrs map[string]string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if err := SaveSnapshotWithTx(tx, controller, attrs); err != nil {
		RollbackTransaction(tx)
		return err
	}
	return CommitTransaction(tx)
}

func SaveSnapshotWithTx(tx *sql.Tx, controller string, attrs map[string]string) error {
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE controller = ?`, controller); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range attrs {
		_, err := tx.Exec(`INSERT INTO snapshots (controller, key, value, updated_at) VALUES (?, ?, ?, ?)`,
			controller, key, value, now)
		if err != nil {
			return fmt.Errorf("insert snapshot attribute %s: %w", key, err)
		}
	}
	return nil
}

// SetSnapshotAttribute upserts a single attribute.
func SetSnapshotAttribute(db *sql.DB, controller, key, value string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO snapshots (controller, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (controller, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		controller, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("set snapshot attribute %s: %w", key, err)
	}
	return CommitTransaction(tx)
}

func DeleteSnapshot(db *sql.DB, controller string) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE controller = ?`, controller); err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return CommitTransaction(tx)
}

// LoadSnapshot returns the stored attributes of controller, empty if none.
func LoadSnapshot(db *sql.DB, controller string) (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM snapshots WHERE controller = ?`, controller)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	attrs := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan snapshot attribute: %w", err)
		}
		attrs[key] = value
	}
	return attrs, rows.Err()
}

func RecordTransition(db *sql.DB, entity string, active bool, at time.Time) error {
	tx, err := StartTransaction(db)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`INSERT INTO actuator_transitions (entity, active, at) VALUES (?, ?, ?)`,
		entity, active, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("insert transition: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM actuator_transitions WHERE entity = ? AND id NOT IN (
		SELECT id FROM actuator_transitions WHERE entity = ? ORDER BY id DESC LIMIT ?)`,
		entity, entity, transitionsKept)
	if err != nil {
		RollbackTransaction(tx)
		return fmt.Errorf("prune transitions: %w", err)
	}
	return CommitTransaction(tx)
}

type Transition struct {
	Entity string
	Active bool
	At     time.Time
}

// RecentTransitions returns up to limit transitions of entity, newest first.
func RecentTransitions(db *sql.DB, entity string, limit int) ([]Transition, error) {
	rows, err := db.Query(`SELECT entity, active, at FROM actuator_transitions WHERE entity = ? ORDER BY id DESC LIMIT ?`,
		entity, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		var at string
		if err := rows.Scan(&tr.Entity, &tr.Active, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if tr.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse transition time: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func LastTransition(db *sql.DB, entity string) (bool, time.Time, error) {
	recent, err := RecentTransitions(db, entity, 1)
	if err != nil {
		return false, time.Time{}, err
	}
	if len(recent) == 0 {
		return false, time.Time{}, fmt.Errorf("%s: %w", entity, ErrNoTransition)
	}
	return recent[0].Active, recent[0].At, nil
}

// TransitionRecorder persists actuator transitions for the state tracker.
type TransitionRecorder struct {
	DB *sql.DB
}

func (r TransitionRecorder) RecordTransition(entity string, active bool, at time.Time) error {
	return RecordTransition(r.DB, entity, active, at)
}

func (r TransitionRecorder) LastTransition(entity string) (bool, time.Time, error) {
	return LastTransition(r.DB, entity)
}

// SnapshotStore keeps controller snapshots in sqlite.
type SnapshotStore struct {
	DB *sql.DB
}

func (s SnapshotStore) Load(_ context.Context, controller string) (*model.Snapshot, error) {
	attrs, err := LoadSnapshot(s.DB, controller)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	snap := model.SnapshotFromAttributes(attrs)
	return &snap, nil
}

func (s SnapshotStore) Save(_ context.Context, controller string, snap model.Snapshot) error {
	return SaveSnapshot(s.DB, controller, snap.Attributes())
}
