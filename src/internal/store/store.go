// Package store keeps a history of runs and detects drift of the static
// permission report between them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/VectorBits/permscan/src/internal/report"
)

type Run struct {
	ID         uint `gorm:"primaryKey"`
	Project    string
	Chain      string
	Block      string
	StartedAt  time.Time
	DurationMs int64
	Addresses  int
	Skipped    int
}

// Snapshot is the result for one address in one run.
type Snapshot struct {
	ID      uint   `gorm:"primaryKey"`
	RunID   uint   `gorm:"index"`
	Chain   string `gorm:"index:idx_chain_address"`
	Address string `gorm:"index:idx_chain_address"`
	Digest  string
	Changed bool
	Report  string `gorm:"type:text"`
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Run{}, &Snapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Record saves run and one snapshot per report entry. It returns the addresses
// whose digest differs from their previous snapshot on the same chain.
func (s *Store) Record(ctx context.Context, run *Run, rep *report.Report) ([]string, error) {
	run.Addresses = rep.Len()
	var drifted []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		for _, addr := range rep.Addresses() {
			entry := rep.Entry(addr)
			digest, err := Digest(entry)
			if err != nil {
				return err
			}
			data, err := entry.MarshalJSON()
			if err != nil {
				return err
			}

			prev, err := latest(tx, run.Chain, addr)
			if err != nil {
				return err
			}
			snap := &Snapshot{
				RunID:   run.ID,
				Chain:   run.Chain,
				Address: strings.ToLower(addr),
				Digest:  digest,
				Changed: prev != nil && prev.Digest != digest,
				Report:  string(data),
			}
			if snap.Changed {
				drifted = append(drifted, addr)
			}
			if err := tx.Create(snap).Error; err != nil {
				return fmt.Errorf("failed to save snapshot of %s: %w", addr, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drifted, nil
}

// Latest returns the most recent snapshot of address on chain, or nil.
func (s *Store) Latest(ctx context.Context, chain, address string) (*Snapshot, error) {
	return latest(s.db.WithContext(ctx), chain, address)
}

func latest(db *gorm.DB, chain, address string) (*Snapshot, error) {
	var snap Snapshot
	err := db.Where("chain = ? AND address = ?", chain, strings.ToLower(address)).Order("id desc").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history of %s: %w", address, err)
	}
	return &snap, nil
}

func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&runs).Error
	return runs, err
}
