package core

import (
	"database/sql"
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/putto11262002/chatroom/migrations"
)

type SQLiteDBOption struct {
	// mode can be ro | rw | rwc | memory
	Mode string
	// cache can be shared | private
	Cache string
	// JournalMode be DELETE | TRUNCATE | PERSIST | MEMORY | WAL | OFF
	JournalMode string
	// BusyTimeout is the number of milliseconds a connection waits on a locked database.
	BusyTimeout int
	ForeignKeys bool
	// TxLock can be deferred | immediate | exclusive
	TxLock string
}

// DefaultSQLiteDBOption lets concurrent writers queue on the lock instead of failing with SQLITE_BUSY.
// The cache stays private: shared cache locks fail immediately and ignore the busy timeout.
var DefaultSQLiteDBOption = SQLiteDBOption{
	Mode:        "rwc",
	Cache:       "private",
	JournalMode: "WAL",
	BusyTimeout: 5000,
	ForeignKeys: true,
	TxLock:      "immediate",
}

func (config *SQLiteDBOption) DSN(sb *strings.Builder) {
	if config == nil {
		return
	}

	params := make([]string, 0, 6)
	if config.Mode != "" {
		params = append(params, "mode="+config.Mode)
	}
	if config.Cache != "" {
		params = append(params, "cache="+config.Cache)
	}
	if config.JournalMode != "" {
		params = append(params, "_journal_mode="+config.JournalMode)
	}
	if config.BusyTimeout > 0 {
		params = append(params, "_busy_timeout="+strconv.Itoa(config.BusyTimeout))
	}
	if config.ForeignKeys {
		params = append(params, "_foreign_keys=on")
	}
	if config.TxLock != "" {
		params = append(params, "_txlock="+config.TxLock)
	}
	if len(params) == 0 {
		return
	}
	sb.WriteString("?")
	sb.WriteString(strings.Join(params, "&"))
}

type SQLiteDB struct {
	*sql.DB
	config     *SQLiteDBOption
	file       string
	migrations fs.FS
}

// NewSQLiteDB opens the database file. Migrations default to the embedded set.
func NewSQLiteDB(file string, config *SQLiteDBOption) (*SQLiteDB, error) {
	db := &SQLiteDB{config: config, file: file, migrations: migrations.FS}

	var dsn strings.Builder
	dsn.WriteString("file:")
	dsn.WriteString(db.file)

	if db.config != nil {
		config.DSN(&dsn)
	}
	d, err := sql.Open("sqlite3", dsn.String())
	if err != nil {
		return nil, err
	}

	db.DB = d
	return db, nil
}

func (db *SQLiteDB) Migrate() error {
	goose.SetBaseFS(db.migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.Up(db.DB, "."); err != nil {
		return err
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
