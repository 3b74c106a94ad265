package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/general-thermostat/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, ApplyMigrations(conn))

	var count int
	err := conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('snapshots', 'actuator_transitions')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	conn := openTestDB(t)
	store := SnapshotStore{DB: conn}
	ctx := context.Background()

	snap, err := store.Load(ctx, "office")
	require.NoError(t, err)
	assert.Nil(t, snap, "nothing saved yet")

	target, cold := 21.5, 0.3
	require.NoError(t, store.Save(ctx, "office", model.Snapshot{
		TargetTemperature:  &target,
		ColdTolerance:      &cold,
		PresetMode:         "comfort",
		PresetModes:        []string{"none", "comfort"},
		PresetTemperatures: []float64{20, 21.5},
		HVACMode:           model.ModeHeat,
	}))

	// A second save replaces the first entirely.
	require.NoError(t, store.Save(ctx, "office", model.Snapshot{TargetTemperature: &target, HVACMode: model.ModeOff}))

	snap, err = store.Load(ctx, "office")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 21.5, *snap.TargetTemperature)
	assert.Nil(t, snap.ColdTolerance)
	assert.Equal(t, model.ModeOff, snap.HVACMode)
	assert.Empty(t, snap.PresetMode)

	other, err := store.Load(ctx, "garage")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSetSnapshotAttribute_Upserts(t *testing.T) {
	conn := openTestDB(t)

	require.NoError(t, SetSnapshotAttribute(conn, "office", model.AttrHVACMode, "heat"))
	require.NoError(t, SetSnapshotAttribute(conn, "office", model.AttrHVACMode, "off"))

	attrs, err := LoadSnapshot(conn, "office")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{model.AttrHVACMode: "off"}, attrs)

	require.NoError(t, DeleteSnapshot(conn, "office"))
	attrs, err = LoadSnapshot(conn, "office")
	require.NoError(t, err)
	assert.Empty(t, attrs)
}

func TestTransitionRecorder(t *testing.T) {
	conn := openTestDB(t)
	rec := TransitionRecorder{DB: conn}

	_, _, err := rec.LastTransition("switch.heater")
	assert.ErrorIs(t, err, ErrNoTransition)

	t0 := time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC)
	require.NoError(t, rec.RecordTransition("switch.heater", true, t0))
	require.NoError(t, rec.RecordTransition("switch.heater", false, t0.Add(15*time.Minute)))
	require.NoError(t, rec.RecordTransition("switch.fan", true, t0.Add(20*time.Minute)))

	active, at, err := rec.LastTransition("switch.heater")
	require.NoError(t, err)
	assert.False(t, active)
	assert.True(t, at.Equal(t0.Add(15*time.Minute)))

	recent, err := RecentTransitions(conn, "switch.heater", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[1].Active)
}

func TestRecordTransition_Prunes(t *testing.T) {
	conn := openTestDB(t)
	t0 := time.Now()
	for i := 0; i < transitionsKept+5; i++ {
		require.NoError(t, RecordTransition(conn, "switch.heater", i%2 == 0, t0.Add(time.Duration(i)*time.Second)))
	}

	var count int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM actuator_transitions`).Scan(&count))
	assert.Equal(t, transitionsKept, count)
}

func TestCLIHelpers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "thermostat.db")

	require.NoError(t, SetHVACModeCLI(path, "office", "heat"))
	require.NoError(t, SetAttributeCLI(path, "office", model.AttrTemperature, "20"))

	attrs, err := ShowSnapshotCLI(path, "office")
	require.NoError(t, err)
	assert.Equal(t, "heat", attrs[model.AttrHVACMode])
	assert.Equal(t, "20", attrs[model.AttrTemperature])

	require.NoError(t, ClearSnapshotCLI(path, "office"))
	attrs, err = ShowSnapshotCLI(path, "office")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	trs, err := TransitionsCLI(path, "switch.heater", 5)
	require.NoError(t, err)
	assert.Empty(t, trs)
}
