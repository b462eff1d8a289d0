package sqlite

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	// DriverName is the database/sql driver used to open SQLite files.
	DriverName = "sqlite3"

	// InmemPath opens a database that lives only as long as its SqlStore.
	InmemPath = ":memory:"

	// Extension is appended to a database name to form its file name.
	Extension = ".sqlite"
)

// SqlStore is a single SQLite database file.
type SqlStore struct {
	Mu   sync.Mutex
	DB   *sqlx.DB
	log  *zap.Logger
	path string
}

// NewSqlStore opens the SQLite database at path, creating it if needed.
func NewSqlStore(path string, log *zap.Logger) (*SqlStore, error) {
	s := &SqlStore{
		log:  log,
		path: path,
	}

	if err := s.openDB(); err != nil {
		return nil, err
	}

	log.Debug("Resources opened", zap.String("path", path))
	return s, nil
}

func (s *SqlStore) openDB() error {
	db, err := sqlx.Open(DriverName, s.path)
	if err != nil {
		return err
	}

	// A single connection keeps PRAGMA reads and writes on the connection
	// that holds the transaction, and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return fmt.Errorf("unable to open sqlite database %s: %w", s.path, err)
	}

	s.DB = db
	return nil
}

// Close the connection to the sqlite database
func (s *SqlStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// userVersion reads the user_version header field.
func userVersion(q sqlx.Queryer) (int, error) {
	var version int
	if err := sqlx.Get(q, &version, `PRAGMA user_version;`); err != nil {
		return 0, err
	}
	return version, nil
}

// setUserVersion writes the user_version header field. PRAGMA statements do
// not accept bound parameters.
func setUserVersion(e sqlx.Execer, version int) error {
	_, err := e.Exec(fmt.Sprintf(`PRAGMA user_version = %d;`, version))
	return err
}

// quoteIdent quotes a table or column name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
