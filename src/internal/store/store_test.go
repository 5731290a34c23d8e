package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/VectorBits/permscan/src/internal/report"
)

const addr = "0x00000000000000000000000000000000000000AA"

func openStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "history.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	s, err := New(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return s
}

func reportWith(modifiers []string, owner any) *report.Report {
	entry := report.NewEntry(addr)
	rec := &report.FunctionRecord{Function: "withdraw", Modifiers: modifiers, ReadInsideModifiers: []string{"owner"}}
	rec.SetValue("owner", owner)
	entry.SetContract(&report.ContractRecord{Name: "Vault", Functions: []*report.FunctionRecord{rec}})
	entry.StorageValues = map[string]any{"owner": owner}
	rep := report.New()
	rep.Add(entry)
	return rep
}

func TestDigestIgnoresStorageValues(t *testing.T) {
	a, err := Digest(reportWith([]string{"onlyOwner"}, "0x01").Entry(addr))
	require.NoError(t, err)
	b, err := Digest(reportWith([]string{"onlyOwner"}, "0x02").Entry(addr))
	require.NoError(t, err)
	c, err := Digest(reportWith([]string{"onlyAdmin"}, "0x01").Entry(addr))
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRecordDetectsDrift(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	drifted, err := s.Record(ctx, &Run{Project: "demo", Chain: "mainnet", StartedAt: time.Now()}, reportWith([]string{"onlyOwner"}, "0x01"))
	require.NoError(t, err)
	assert.Empty(t, drifted)

	drifted, err = s.Record(ctx, &Run{Project: "demo", Chain: "mainnet", StartedAt: time.Now()}, reportWith([]string{"onlyOwner"}, "0x02"))
	require.NoError(t, err)
	assert.Empty(t, drifted)

	drifted, err = s.Record(ctx, &Run{Project: "demo", Chain: "mainnet", StartedAt: time.Now()}, reportWith([]string{"onlyAdmin"}, "0x02"))
	require.NoError(t, err)
	assert.Equal(t, []string{addr}, drifted)

	snap, err := s.Latest(ctx, "mainnet", addr)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.Changed)
	assert.Contains(t, snap.Report, "onlyAdmin")

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, 1, runs[0].Addresses)

	none, err := s.Latest(ctx, "bsc", addr)
	require.NoError(t, err)
	assert.Nil(t, none)
}
