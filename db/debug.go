package db

import (
	"database/sql"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

func withDB(dbPath string, fn func(*sql.DB) error) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func ShowSnapshotCLI(dbPath, controller string) (map[string]string, error) {
	var attrs map[string]string
	err := withDB(dbPath, func(conn *sql.DB) error {
		var err error
		attrs, err = LoadSnapshot(conn, controller)
		return err
	})
	return attrs, err
}

// SetHVACModeCLI rewrites the stored mode; it takes effect on the next start.
func SetHVACModeCLI(dbPath, controller, mode string) error {
	return withDB(dbPath, func(conn *sql.DB) error {
		return SetSnapshotAttribute(conn, controller, model.AttrHVACMode, mode)
	})
}

func SetAttributeCLI(dbPath, controller, key, value string) error {
	return withDB(dbPath, func(conn *sql.DB) error {
		return SetSnapshotAttribute(conn, controller, key, value)
	})
}

func ClearSnapshotCLI(dbPath, controller string) error {
	return withDB(dbPath, func(conn *sql.DB) error {
		return DeleteSnapshot(conn, controller)
	})
}

func TransitionsCLI(dbPath, entity string, limit int) ([]Transition, error) {
	var out []Transition
	err := withDB(dbPath, func(conn *sql.DB) error {
		var err error
		out, err = RecentTransitions(conn, entity, limit)
		return err
	})
	return out, err
}
