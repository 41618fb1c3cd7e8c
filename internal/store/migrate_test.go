// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchkey/latchkey/pkg/errutil"
)

// fakeMigrate implements migrateIface for testing.
type fakeMigrate struct {
	upErr          error
	downErr        error
	stepsErr       error
	stepsCalled    bool
	versionVal     uint
	versionErr     error
	dirty          bool
	forceErr       error
	closeSourceErr error
	closeDBErr     error
}

func (m *fakeMigrate) Up() error   { return m.upErr }
func (m *fakeMigrate) Down() error { return m.downErr }
func (m *fakeMigrate) Steps(_ int) error {
	m.stepsCalled = true
	return m.stepsErr
}
func (m *fakeMigrate) Version() (uint, bool, error) { return m.versionVal, m.dirty, m.versionErr }
func (m *fakeMigrate) Force(_ int) error            { return m.forceErr }
func (m *fakeMigrate) Close() (error, error)        { return m.closeSourceErr, m.closeDBErr }

func TestNewMigrator_InvalidURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/testdb")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@host:5432/db", "pgx5://u:p@host:5432/db"},
		{"postgresql://u:p@host:5432/db", "pgx5://u:p@host:5432/db"},
		{"pgx5://u:p@host:5432/db", "pgx5://u:p@host:5432/db"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, migrateURL(tt.in))
		})
	}
}

func TestMigrator_Operations(t *testing.T) {
	boom := errors.New("database locked")

	tests := []struct {
		name     string
		fake     *fakeMigrate
		call     func(*Migrator) error
		wantCode string
	}{
		{name: "up", fake: &fakeMigrate{}, call: (*Migrator).Up},
		{name: "up no change", fake: &fakeMigrate{upErr: migrate.ErrNoChange}, call: (*Migrator).Up},
		{name: "up error", fake: &fakeMigrate{upErr: boom}, call: (*Migrator).Up, wantCode: "MIGRATION_UP_FAILED"},
		{name: "down", fake: &fakeMigrate{}, call: (*Migrator).Down},
		{name: "down no change", fake: &fakeMigrate{downErr: migrate.ErrNoChange}, call: (*Migrator).Down},
		{name: "down error", fake: &fakeMigrate{downErr: boom}, call: (*Migrator).Down, wantCode: "MIGRATION_DOWN_FAILED"},
		{
			name: "steps no change",
			fake: &fakeMigrate{stepsErr: migrate.ErrNoChange},
			call: func(m *Migrator) error { return m.Steps(-1) },
		},
		{
			name:     "steps error",
			fake:     &fakeMigrate{stepsErr: boom},
			call:     func(m *Migrator) error { return m.Steps(2) },
			wantCode: "MIGRATION_STEPS_FAILED",
		},
		{
			name:     "force error",
			fake:     &fakeMigrate{forceErr: boom},
			call:     func(m *Migrator) error { return m.Force(1) },
			wantCode: "MIGRATION_FORCE_FAILED",
		},
		{
			name:     "force negative",
			fake:     &fakeMigrate{},
			call:     func(m *Migrator) error { return m.Force(-1) },
			wantCode: "INVALID_VERSION",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(&Migrator{m: tt.fake})
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestMigrator_Steps_ZeroSkipsDriver(t *testing.T) {
	fake := &fakeMigrate{}
	require.NoError(t, (&Migrator{m: fake}).Steps(0))
	assert.False(t, fake.stepsCalled)
}

func TestMigrator_Version(t *testing.T) {
	t.Run("reports version and dirty flag", func(t *testing.T) {
		version, dirty, err := (&Migrator{m: &fakeMigrate{versionVal: 2, dirty: true}}).Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.True(t, dirty)
	})

	t.Run("nil version is zero", func(t *testing.T) {
		version, dirty, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Version()
		require.NoError(t, err)
		assert.Equal(t, uint(0), version)
		assert.False(t, dirty)
	})

	t.Run("driver error", func(t *testing.T) {
		_, _, err := (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name      string
		fake      *fakeMigrate
		component string
	}{
		{name: "clean", fake: &fakeMigrate{}},
		{name: "source", fake: &fakeMigrate{closeSourceErr: errors.New("source close failed")}, component: "source"},
		{name: "database", fake: &fakeMigrate{closeDBErr: errors.New("db close failed")}, component: "database"},
		{
			name:      "both",
			fake:      &fakeMigrate{closeSourceErr: errors.New("source close failed"), closeDBErr: errors.New("db close failed")},
			component: "both",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Migrator{m: tt.fake}).Close()
			if tt.component == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			errutil.AssertErrorContext(t, err, "component", tt.component)
		})
	}
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	tests := []struct {
		name        string
		fake        *fakeMigrate
		wantPending []uint
		wantApplied []uint
	}{
		{name: "fresh database", fake: &fakeMigrate{versionErr: migrate.ErrNilVersion}, wantPending: []uint{1, 2}},
		{name: "partially migrated", fake: &fakeMigrate{versionVal: 1}, wantPending: []uint{2}, wantApplied: []uint{1}},
		{name: "at latest", fake: &fakeMigrate{versionVal: 2}, wantApplied: []uint{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: tt.fake}

			pending, err := m.PendingMigrations()
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, pending)

			applied, err := m.AppliedMigrations()
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)
		})
	}

	t.Run("version error carries operation", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}

		_, err := m.PendingMigrations()
		errutil.AssertErrorContext(t, err, "operation", "get pending migrations")

		_, err = m.AppliedMigrations()
		errutil.AssertErrorContext(t, err, "operation", "get applied migrations")
	})
}

func TestMigrationName(t *testing.T) {
	tests := []struct {
		version  uint
		expected string
	}{
		{1, "000001_create_users"},
		{2, "000002_reset_token_constraints"},
		{999, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("version_%d", tt.version), func(t *testing.T) {
			name, err := MigrationName(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestAllMigrationVersions_ReturnsCopy(t *testing.T) {
	first, err := allMigrationVersions()
	require.NoError(t, err)
	require.NotEmpty(t, first)

	original := first[0]
	first[0] = 99999

	second, err := allMigrationVersions()
	require.NoError(t, err)
	assert.Equal(t, original, second[0], "mutation should not affect cache")
}
