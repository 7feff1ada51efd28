package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"sccompanion/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMigration is one row of the applied-migration log.
type SchemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:255;not null"`
	Checksum  string `gorm:"size:64"`
	AppliedAt time.Time
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

// Checksum fingerprints the up script so edits after release are noticed.
func (m *Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpScript))
	return hex.EncodeToString(sum[:])
}

// MigrationStore reads and writes the migration log.
type MigrationStore struct {
	db *gorm.DB
}

func NewMigrationStore(db *gorm.DB) *MigrationStore {
	return &MigrationStore{db: db}
}

// Applied returns the logged migrations ordered by version. A missing log
// table reads as an empty log.
func (s *MigrationStore) Applied(ctx context.Context) ([]SchemaMigration, error) {
	var rows []SchemaMigration
	err := s.db.WithContext(ctx).Order("version").Find(&rows).Error
	if err != nil {
		if isMissingTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read migration log: %w", err)
	}
	return rows, nil
}

// GetAppliedMigrations returns only the applied version numbers.
func (s *MigrationStore) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := s.Applied(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.Version)
	}
	return versions, nil
}

func isMissingTableError(err error) bool {
	msg := err.Error()
	return (strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist")) ||
		strings.Contains(msg, "no such table")
}

// apply runs the up script and logs it in one transaction.
func (s *MigrationStore) apply(ctx context.Context, m Migration) error {
	start := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("apply migration %s: %w", m.String(), err)
		}
		row := SchemaMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum(), AppliedAt: time.Now().UTC()}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("log migration %s: %w", m.String(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("migration applied",
		slog.String("migration", m.String()), slog.Duration("took", time.Since(start)))
	return nil
}

// Pending returns the registered migrations missing from applied, in order.
func Pending(applied []int, registered []Migration) []Migration {
	var out []Migration
	for _, m := range registered {
		if !slices.Contains(applied, m.Version) {
			out = append(out, m)
		}
	}
	return out
}

// RunMigrations applies every embedded migration that is not yet logged.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	return runMigrations(ctx, db, migrations)
}

func runMigrations(ctx context.Context, db *gorm.DB, registered []Migration) error {
	if err := db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("ensure migration log: %w", err)
	}

	store := NewMigrationStore(db)
	rows, err := store.Applied(ctx)
	if err != nil {
		return err
	}
	applied := make([]int, 0, len(rows))
	for _, r := range rows {
		applied = append(applied, r.Version)
	}
	if err := validateAppliedVersions(applied, registered); err != nil {
		return err
	}
	warnChecksumDrift(rows, registered)

	pending := Pending(applied, registered)
	if len(pending) == 0 {
		middleware.Logger.Debug("schema up to date", slog.Int("applied", len(applied)))
		return nil
	}
	for _, m := range pending {
		if err := store.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// warnChecksumDrift logs applied migrations whose embedded script changed.
func warnChecksumDrift(rows []SchemaMigration, registered []Migration) {
	for _, r := range rows {
		if r.Checksum == "" {
			continue
		}
		for i := range registered {
			if registered[i].Version == r.Version && registered[i].Checksum() != r.Checksum {
				middleware.Logger.Warn("applied migration was edited",
					slog.String("migration", registered[i].String()))
			}
		}
	}
}

func validateAppliedVersions(applied []int, registered []Migration) error {
	var unknown []string
	for _, v := range slices.Sorted(slices.Values(applied)) {
		if !slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == v }) {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return fmt.Errorf("schema_migrations lists versions this build does not know: %s",
		strings.Join(unknown, ", "))
}

// RollbackMigration runs the down script of an applied version and removes
// its log row.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(version)
	if m == nil {
		return fmt.Errorf("migration version %d not found", version)
	}
	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("roll back migration %s: %w", m.String(), err)
		}
		return tx.Where("version = ?", version).Delete(&SchemaMigration{}).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.Info("migration rolled back", slog.String("migration", m.String()))
	return nil
}
