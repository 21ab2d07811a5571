package database

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"secmaster/internal/observability"

	"gorm.io/gorm"
)

// appliedMigration is one row of the migration ledger.
type appliedMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null;index"`
}

func (appliedMigration) TableName() string { return "migration_logs" }

// appliedVersions lists the ledger in version order. A database that never
// ran SQL migrations has an empty ledger.
func appliedVersions(ctx context.Context, db *gorm.DB) ([]int, error) {
	db = db.WithContext(ctx)
	if !db.Migrator().HasTable(&appliedMigration{}) {
		return nil, nil
	}
	var versions []int
	if err := db.Model(&appliedMigration{}).Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}
	return versions, nil
}

// pendingMigrations returns the entries of known that applied lacks.
// A ledger version this build does not know means a newer build migrated
// the database, and nothing is applied on top of it.
func pendingMigrations(known []Migration, applied []int) ([]Migration, error) {
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	var pending []Migration
	for _, m := range known {
		if done[m.Version] {
			delete(done, m.Version)
			continue
		}
		pending = append(pending, m)
	}
	if len(done) == 0 {
		return pending, nil
	}

	unknown := slices.Sorted(maps.Keys(done))
	labels := make([]string, len(unknown))
	for i, v := range unknown {
		labels[i] = fmt.Sprintf("%06d", v)
	}
	return nil, fmt.Errorf("migration ledger has versions this build does not know: %s", strings.Join(labels, ", "))
}

// RunMigrations applies every pending embedded migration, each in its own
// transaction together with its ledger row.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if registerErr != nil {
		return registerErr
	}
	if err := db.WithContext(ctx).AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("ensure migration ledger: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	pending, err := pendingMigrations(registered, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		observability.Logger.DebugContext(ctx, "schema migrations up to date", slog.Int("applied", len(applied)))
		return nil
	}

	for _, m := range pending {
		start := time.Now()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return err
			}
			return tx.Create(&appliedMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", m, err)
		}
		observability.Logger.InfoContext(ctx, "applied schema migration",
			slog.String("migration", m.String()), slog.Duration("took", time.Since(start)))
	}
	return nil
}

// RollbackMigration runs the down script of an applied migration and removes
// it from the ledger.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m, ok := findMigration(version)
	if !ok {
		return fmt.Errorf("no migration with version %d", version)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %s is not applied", m)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&appliedMigration{}, version).Error
	})
	if err != nil {
		return fmt.Errorf("roll back migration %s: %w", m, err)
	}
	observability.Logger.InfoContext(ctx, "rolled back schema migration", slog.String("migration", m.String()))
	return nil
}
