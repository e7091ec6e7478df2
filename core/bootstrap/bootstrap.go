package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/botfsm/botfsm/core/config"
	coredatabase "github.com/botfsm/botfsm/core/database"
	"github.com/botfsm/botfsm/core/engine"
	"github.com/botfsm/botfsm/core/logger"
	"github.com/botfsm/botfsm/core/session"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error

	// Screens register application states on the machine built here.
	Screens []Screen
}

// Result exposes infrastructure initialized by the bootstrap pipeline. DB
// is nil when the memory session backend is selected.
type Result struct {
	DB       *sqlx.DB
	Sessions engine.SessionStore
	Machine  *engine.Machine
}

// Run initializes the logger, prepares the session backend (connecting and
// migrating the database when needed), and builds the state machine.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	var (
		db    *sqlx.DB
		store engine.SessionStore
	)
	switch opts.Config.Session.Backend {
	case coreconfig.SessionBackendMemory:
		store = engine.NewMemoryStore()
	default:
		connect := opts.Connect
		if connect == nil {
			connect = coredatabase.Connect
		}
		var err error
		db, err = connect(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
		}

		migrate := opts.Migrate
		if migrate == nil {
			migrate = coredatabase.RunMigrations
		}
		if err := migrate(opts.Database); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
		}
		store = session.NewPostgresStore(db)
	}

	machine := engine.New(store)
	for _, screen := range opts.Screens {
		if screen == nil {
			continue
		}
		screen.Register(machine)
	}

	return &Result{DB: db, Sessions: store, Machine: machine}, nil
}
