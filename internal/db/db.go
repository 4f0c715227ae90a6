package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const defaultDBName = "agoragate.db"

type Config struct {
	Workspace string
}

// Handles holds the two connections to the one store: a single-connection
// writer whose transactions start in immediate mode, and a reader pool that
// observes the last committed snapshot without blocking the writer.
type Handles struct {
	Writer *sql.DB
	Reader *sql.DB
}

func dbPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".agoragate", defaultDBName)
}

// EnsureWorkspace creates the workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, ".agoragate")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite store in WAL mode with foreign keys on and returns
// both handles. WAL is what lets readers proceed while a write is in flight.
func Open(cfg Config) (*Handles, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	path := dbPath(cfg.Workspace)
	writerDSN := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, err
	}
	// One connection, so immediate transactions never contend with each
	// other at the driver level.
	writer.SetMaxOpenConns(1)

	readerDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		writer.Close()
		return nil, err
	}
	return &Handles{Writer: writer, Reader: reader}, nil
}

// Close closes both handles.
func (h *Handles) Close() error {
	rerr := h.Reader.Close()
	werr := h.Writer.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace)
}
