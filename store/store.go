// Package store reads and writes OpenCart category descriptions through gorm.
//
// MySQL is the production target; Postgres and SQLite are supported for
// migrated catalogs and local dumps. Writes use a native upsert on the
// (category_id, language_id) key, so a row is never duplicated even if two
// writers race.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/minios-linux/octrans/config"
	"github.com/minios-linux/octrans/logging"
)

// TableName is the unprefixed OpenCart table this package works on.
const TableName = "category_description"

// ErrLocked is returned by Lock when another run holds the advisory lock.
var ErrLocked = errors.New("advisory lock is held by another run")

// UpsertResult tells which branch of an upsert was taken.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// Store is the category description repository.
type Store struct {
	db  *gorm.DB
	cfg config.DBConfig
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// Open connects to the configured database and verifies the connection.
func Open(cfg config.DBConfig, log zerolog.Logger) (*Store, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   cfg.Prefix,
			SingularTable: true,
		},
		Logger: gormlogger.New(logging.Printf{Logger: log}, gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == config.DriverSQLite {
		// SQLite serialises writers anyway; one connection keeps in-memory
		// databases and transactions on the same handle.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverMySQL, "":
		return gormmysql.Open(cfg.DSN()), nil
	case config.DriverPostgres:
		return postgres.Open(cfg.DSN()), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.DSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Table returns the prefixed table name.
func (s *Store) Table() string {
	return s.cfg.Table(TableName)
}

// Migrate creates the category description table if it does not exist.
// OpenCart installs create it; this is for SQLite dumps and tests.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&CategoryDescription{}); err != nil {
		return fmt.Errorf("migrate %s: %w", s.Table(), err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// FetchByLanguage returns every description row of a language, ordered by
// category id.
func (s *Store) FetchByLanguage(ctx context.Context, languageID int) ([]CategoryDescription, error) {
	var rows []CategoryDescription
	err := s.db.WithContext(ctx).
		Where("language_id = ?", languageID).
		Order("category_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch %s for language %d: %w", s.Table(), languageID, err)
	}
	return rows, nil
}

// Get returns one row, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, categoryID, languageID int) (*CategoryDescription, error) {
	var row CategoryDescription
	err := s.db.WithContext(ctx).
		Where("category_id = ? AND language_id = ?", categoryID, languageID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get category %d language %d: %w", categoryID, languageID, err)
	}
	return &row, nil
}

// Exists reports whether a row exists for the key pair.
func (s *Store) Exists(ctx context.Context, categoryID, languageID int) (bool, error) {
	ok, err := exists(s.db.WithContext(ctx), categoryID, languageID)
	if err != nil {
		return false, fmt.Errorf("check category %d language %d: %w", categoryID, languageID, err)
	}
	return ok, nil
}

func exists(db *gorm.DB, categoryID, languageID int) (bool, error) {
	var n int64
	err := db.Model(&CategoryDescription{}).
		Where("category_id = ? AND language_id = ?", categoryID, languageID).
		Count(&n).Error
	return n > 0, err
}

// CountByLanguage returns the number of rows of a language.
func (s *Store) CountByLanguage(ctx context.Context, languageID int) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CategoryDescription{}).
		Where("language_id = ?", languageID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count %s for language %d: %w", s.Table(), languageID, err)
	}
	return n, nil
}

// CountUntranslated returns how many source-language categories have no
// destination-language row yet.
func (s *Store) CountUntranslated(ctx context.Context, sourceLangID, destLangID int) (int64, error) {
	table := s.db.Statement.Quote(s.Table())
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %[1]s src
		WHERE src.language_id = ?
		AND NOT EXISTS (SELECT 1 FROM %[1]s dst WHERE dst.category_id = src.category_id AND dst.language_id = ?)`, table)

	var n int64
	if err := s.db.WithContext(ctx).Raw(query, sourceLangID, destLangID).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("count untranslated %d -> %d: %w", sourceLangID, destLangID, err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// Upsert inserts row, or on a (category_id, language_id) conflict assigns
// only the listed fields of the existing row. The statement is a single
// native upsert; the preceding existence probe only decides the reported
// result.
func (s *Store) Upsert(ctx context.Context, row CategoryDescription, fields []string) (UpsertResult, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("upsert category %d: no fields to write", row.CategoryID)
	}
	for _, f := range fields {
		if !IsField(f) {
			return 0, fmt.Errorf("upsert category %d: unknown field %q", row.CategoryID, f)
		}
	}

	var result UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := exists(tx, row.CategoryID, row.LanguageID)
		if err != nil {
			return err
		}
		result = Inserted
		if found {
			result = Updated
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category_id"}, {Name: "language_id"}},
			DoUpdates: clause.AssignmentColumns(fields),
		}).Create(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("upsert category %d language %d: %w", row.CategoryID, row.LanguageID, err)
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Advisory lock
// ---------------------------------------------------------------------------

// Lock takes a named advisory lock on a dedicated connection and returns
// the function releasing it. It does not wait: a lock held elsewhere
// yields ErrLocked. SQLite has no advisory locks; the call is a no-op there.
func (s *Store) Lock(ctx context.Context, name string) (func(), error) {
	var acquire, release string
	switch s.cfg.Driver {
	case config.DriverSQLite:
		return func() {}, nil
	case config.DriverPostgres:
		acquire = "SELECT pg_try_advisory_lock(hashtext($1))"
		release = "SELECT pg_advisory_unlock(hashtext($1))"
	default:
		acquire = "SELECT COALESCE(GET_LOCK(?, 0), 0) = 1"
		release = "SELECT RELEASE_LOCK(?)"
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %q: %w", name, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, acquire, name).Scan(&acquired); err != nil {
		conn.Close()
		return nil, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	if !acquired {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, name)
	}

	return func() {
		var released any
		_ = conn.QueryRowContext(context.Background(), release, name).Scan(&released)
		conn.Close()
	}, nil
}
