// Package shared wires the dependencies common to the binaries.
package shared

import (
	"fmt"
	"log"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/ulearn/core"
	"github.com/trezcool/ulearn/core/course"
	"github.com/trezcool/ulearn/core/history"
	"github.com/trezcool/ulearn/core/lms"
	"github.com/trezcool/ulearn/core/resolver"
	"github.com/trezcool/ulearn/core/session"
	emailsvc "github.com/trezcool/ulearn/services/email"
	logsvc "github.com/trezcool/ulearn/services/logger"
	"github.com/trezcool/ulearn/storage/database"
	inmemdb "github.com/trezcool/ulearn/storage/database/inmem"
	sqlxrepos "github.com/trezcool/ulearn/storage/database/sqlx"
	filestore "github.com/trezcool/ulearn/storage/file"
	"github.com/trezcool/ulearn/storage/inifile"
)

// App holds the dependencies built from the configuration.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	DB        *sqlx.DB // nil with the memory engine
	History   history.Repository
	Config    *inifile.File
	Codes     *inifile.SignCodes
	Endpoints lms.Endpoints
	Sessions  *session.Store
	Resolver  *resolver.Resolver
	Courses   *course.Directory
	Notifier  core.Notifier

	closers []func() error
}

// NewApp loads the configuration at `configPath` and builds every dependency. The session is
// loaded from disk; a missing or malformed session file is not an error.
func NewApp(configPath, logPrefix string) (*App, error) {
	conf, err := core.NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	app := &App{Conf: conf}

	// =========================================================================
	// Logging

	std, closeLog := logsvc.NewStdLogger(logPrefix, conf.Files.Log)
	app.closers = append(app.closers, closeLog)
	logger := logsvc.NewRollbarLogger(std, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	app.Logger = logger

	app.Validate, app.Translator = NewValidator()
	if err = conf.Validate(app.Validate, app.Translator); err != nil {
		app.Logger.Warn(fmt.Sprintf("configuration incomplete: %s", describe(err)))
	}

	// =========================================================================
	// Storage

	if err = app.openHistory(); err != nil {
		app.Logger.Warn(fmt.Sprintf("history database unavailable, keeping history in memory: %v", err))
		app.History = inmemdb.NewHistoryRepository(inmemdb.Open())
	}
	app.Config = inifile.New(conf.Files.Config)
	app.Codes = inifile.NewSignCodes(app.Config, app.Logger)

	// =========================================================================
	// Backend

	app.Endpoints = lms.DefaultEndpoints()
	app.Resolver, err = resolver.New(&http.Client{}, conf.HTTP.Timeout, app.Logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Courses = course.NewDirectory(app.Resolver, app.Endpoints, app.Logger)
	app.Sessions = session.NewStore(filestore.NewSessionRepository(conf.Files.Session), app.Endpoints, conf.HTTP.UserAgent, app.Logger)
	app.Sessions.Load()

	app.Notifier = emailsvc.NewNotifier(conf, app.Logger)
	return app, nil
}

func (app *App) openHistory() error {
	if app.Conf.Database.Engine == database.EngineMemory {
		app.History = inmemdb.NewHistoryRepository(inmemdb.Open())
		return nil
	}
	if err := database.CreateIfNotExist(app.Conf.Database); err != nil {
		return err
	}
	db, err := database.Open(app.Conf.Database)
	if err != nil {
		return err
	}
	if err = database.Migrate(db.DB, app.Conf.Database.Engine, "up"); err != nil {
		_ = db.Close()
		return err
	}
	app.closers = append(app.closers, db.Close)
	app.DB = db
	app.History = sqlxrepos.NewHistoryRepository(db)
	return nil
}

// Close releases the database and the log file, in reverse order of opening.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			log.Printf("closing: %v", err)
		}
	}
	app.closers = nil
}

func describe(err error) string {
	vErr, ok := err.(*core.ValidationError)
	if !ok || len(vErr.Fields) == 0 {
		return err.Error()
	}
	msg := ""
	for i, fld := range vErr.Fields {
		if i > 0 {
			msg += "; "
		}
		msg += fld.Error
	}
	return msg
}
