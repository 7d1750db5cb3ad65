package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tkrehbiel/inboxlace/server/telemetry"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported sql drivers. Both speak sqlite, "sqlite" is the pure go one.
const (
	DriverSQLite  = "sqlite"
	DriverSQLite3 = "sqlite3"
)

var ErrNotOpen = errors.New("database has not been opened")

type Database interface {
	Open() error
	Close()
	Contacts
	Items
	Conversations
	Actors
}

// sqliteDatabase holds contacts, items, conversations and actors in a sqlite database
type sqliteDatabase struct {
	driver     string
	connection string
	db         *gorm.DB
	sqldb      *sql.DB
}

func (s *sqliteDatabase) Open() error {
	if s.db != nil {
		s.Close()
	}
	newLogger := logger.New(
		telemetry.Writer{},
		logger.Config{
			SlowThreshold:             time.Second,  // Slow SQL threshold
			LogLevel:                  logger.Error, // Log level
			IgnoreRecordNotFoundError: true,         // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,        // Disable color
		},
	)
	dialector := &sqlite.Dialector{DriverName: s.driver, DSN: s.connection}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("opening %s database: %w", s.driver, err)
	}
	s.sqldb, err = db.DB()
	if err != nil {
		return err
	}
	s.db = db
	// create tables
	if err := s.db.AutoMigrate(&Contact{}, &Item{}, &Conversation{}, &Actor{}); err != nil {
		s.Close()
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *sqliteDatabase) Close() {
	if s.db != nil {
		s.sqldb.Close()
		s.sqldb = nil
		s.db = nil
	}
}

// conn returns a session bound to ctx, or an error when closed.
func (s *sqliteDatabase) conn(ctx context.Context) (*gorm.DB, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}
	return s.db.WithContext(ctx), nil
}

// NewDatabase returns an unopened database. An empty driver means DriverSQLite.
func NewDatabase(driver, connection string) (Database, error) {
	switch driver {
	case "":
		driver = DriverSQLite
	case DriverSQLite, DriverSQLite3:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return &sqliteDatabase{
		driver:     driver,
		connection: connection,
	}, nil
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
