package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/fs"
)

const (
	EngineSQLite   = "sqlite3"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"

	migrationsDir = "migrations"
)

var ErrNoDatabase = errors.New("memory engine has no database")

func dsn(dbName string, conf core.DatabaseConfig) string {
	if conf.Engine == EngineSQLite {
		return dbName + "?_busy_timeout=5000"
	}

	sslMode := "require"
	if conf.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Engine,
		User:     url.UserPassword(conf.User, conf.Password),
		Host:     conf.Address(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func open(dbName string, conf core.DatabaseConfig) (*sqlx.DB, error) {
	switch conf.Engine {
	case EngineSQLite, EnginePostgres:
	case EngineMemory:
		return nil, ErrNoDatabase
	default:
		return nil, errors.Errorf("unsupported database engine %q", conf.Engine)
	}
	db, err := sqlx.Open(conf.Engine, dsn(dbName, conf))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if conf.Engine == EngineSQLite {
		db.SetMaxOpenConns(1) // sqlite allows a single writer
	}
	return db, nil
}

// pingAttempts returns how many times Open pings: a local sqlite file is either usable or not.
func pingAttempts(engine string) int {
	if engine == EngineSQLite {
		return 1
	}
	return 30
}

// Open opens and pings the history database. The memory engine returns ErrNoDatabase.
func Open(conf core.DatabaseConfig) (*sqlx.DB, error) {
	db, err := open(conf.Name, conf)
	if err != nil {
		return nil, err
	}
	if err = ping(db.DB, pingAttempts(conf.Engine)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB, maxAttempts int) error {
	var err error
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil || attempts == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func createDB(db *sql.DB, name string) error {
	// check if DB exists
	var exists bool
	rows, err := db.Query("SELECT true FROM pg_database WHERE datname = $1", name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err = rows.Scan(&exists); err != nil {
			return errors.Wrap(err, "checking DB")
		}
	}
	if err = rows.Err(); err != nil {
		return errors.Wrap(err, "checking DB")
	}

	// create DB if not exist
	if !exists {
		if _, err = db.Exec(fmt.Sprintf("CREATE DATABASE %q", name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// CreateIfNotExist creates the postgres database. The sqlite file is created on open.
func CreateIfNotExist(conf core.DatabaseConfig) error {
	if conf.Engine != EnginePostgres {
		return nil
	}
	db, err := open("postgres", conf)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB, 30); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	return createDB(db.DB, conf.Name)
}

// Migrate runs the goose `command` (up, down, status, version, ...) over the embedded migrations.
func Migrate(db *sql.DB, engine, command string, args ...string) error {
	goose.SetBaseFS(appfs.FS)
	if err := goose.SetDialect(engine); err != nil {
		return errors.Wrapf(err, "setting dialect %s", engine)
	}
	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}
