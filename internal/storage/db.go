package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/t77yq/task-roster/internal/model"
)

// DefaultTxTimeout bounds how long a transaction may hold the write lock
const DefaultTxTimeout = 15 * time.Second

// Options configures the SQLite store
type Options struct {
	Path      string
	TxTimeout time.Duration
}

// Store persists tasks, occurrences, assignments and rosters in SQLite
type Store struct {
	logger    *zap.Logger
	db        *gorm.DB
	txTimeout time.Duration
	history   *RunHistory
}

// Open opens (creating if needed) the database at opts.Path and migrates it
func Open(opts Options, log *zap.Logger) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "task_roster.db"
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if err := ensureDirForSQLite(opts.Path); err != nil {
		return nil, err
	}

	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(buildDSN(opts)), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	s := &Store{
		logger:    log.Named("store"),
		db:        db,
		txTimeout: opts.TxTimeout,
		history:   NewRunHistory(log, sqlDB),
	}
	if err := s.Migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or upgrades the schema
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(
		&model.User{},
		&model.Task{},
		&model.Occurrence{},
		&model.Assignment{},
		&model.AssignmentGroup{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return s.history.initialize(ctx)
}

// History returns the extender run history backed by the same database
func (s *Store) History() *RunHistory {
	return s.history
}

// TxTimeout reports the per-transaction timeout
func (s *Store) TxTimeout() time.Duration {
	return s.txTimeout
}

// Queries returns non-transactional queries bound to ctx
func (s *Store) Queries(ctx context.Context) *Queries {
	return &Queries{db: s.db.WithContext(ctx)}
}

// InTx runs fn inside a single write transaction. The transaction takes the
// database write lock when it begins, so every read inside fn observes the
// state it commits against. It is rolled back when fn returns an error or
// the store's transaction timeout elapses; lock contention and timeouts are
// reported as ErrBusy.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Queries{db: tx})
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBusy) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isBusy(err) {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	return err
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// buildDSN enables foreign keys (for cascades), a busy timeout matching the
// transaction timeout, and BEGIN IMMEDIATE so transactions serialize on the
// write lock instead of failing at commit.
func buildDSN(opts Options) string {
	params := fmt.Sprintf("_foreign_keys=1&_busy_timeout=%d&_txlock=immediate", opts.TxTimeout.Milliseconds())
	if isMemoryDSN(opts.Path) {
		return opts.Path
	}
	path := strings.TrimPrefix(opts.Path, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		return "file:" + path + "&" + params
	}
	return "file:" + path + "?" + params + "&_journal_mode=WAL"
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if isMemoryDSN(dsn) {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
