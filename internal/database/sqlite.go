package database

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/Trustflow-Network-Labs/signing-relay/internal/utils"
	_ "modernc.org/sqlite"
)

// MemoryDatabase as database_file keeps everything in process memory.
const MemoryDatabase = ":memory:"

// SQLiteManager owns the relay database connection and its table managers
type SQLiteManager struct {
	dir    string
	cm     *utils.ConfigManager
	db     *sql.DB
	logger *utils.LogsManager

	// Specialized managers
	Sessions  *SessionsDB
	Witnesses *WitnessesDB
	Notes     *NotesDB
}

// NewSQLiteManager opens the database named by database_file and creates the
// relay tables.
func NewSQLiteManager(cm *utils.ConfigManager, logger *utils.LogsManager) (*SQLiteManager, error) {
	paths := utils.GetAppPaths("")
	sqlm := &SQLiteManager{
		dir:    paths.DataDir,
		cm:     cm,
		logger: logger,
	}

	db, err := sqlm.CreateConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %v", err)
	}
	sqlm.db = db

	if err := sqlm.initializeManagers(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database managers: %v", err)
	}

	return sqlm, nil
}

// CreateConnection creates and configures the database connection
func (sqlm *SQLiteManager) CreateConnection() (*sql.DB, error) {
	dbFileName := sqlm.cm.GetConfigWithDefault("database_file", "signing-relay.db")

	if dbFileName == MemoryDatabase {
		db, err := sql.Open("sqlite", MemoryDatabase)
		if err != nil {
			return nil, err
		}
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		return db, nil
	}

	// Make sure we have os specific path separator since we are adding this path to host's path
	switch runtime.GOOS {
	case "linux", "darwin":
		dbFileName = filepath.ToSlash(dbFileName)
	case "windows":
		dbFileName = filepath.FromSlash(dbFileName)
	default:
		return nil, fmt.Errorf("unsupported OS type `%s`", runtime.GOOS)
	}

	path := dbFileName
	if !filepath.IsAbs(path) {
		path = filepath.Join(sqlm.dir, dbFileName)
	}

	db, err := sql.Open("sqlite",
		fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL", path))
	if err != nil {
		sqlm.logger.Error(fmt.Sprintf("Can not create database connection. (%s)", err.Error()), "database")
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		sqlm.logger.Warn(fmt.Sprintf("Failed to enable WAL mode: %s", err.Error()), "database")
	}

	return db, nil
}

// initializeManagers sets up specialized database managers
func (sqlm *SQLiteManager) initializeManagers() error {
	var err error

	if sqlm.Sessions, err = NewSessionsDB(sqlm.db, sqlm.logger); err != nil {
		return fmt.Errorf("failed to initialize sessions table: %v", err)
	}
	if sqlm.Witnesses, err = NewWitnessesDB(sqlm.db, sqlm.logger); err != nil {
		return fmt.Errorf("failed to initialize auth_witnesses table: %v", err)
	}
	if sqlm.Notes, err = NewNotesDB(sqlm.db, sqlm.logger); err != nil {
		return fmt.Errorf("failed to initialize shielded_notes table: %v", err)
	}

	sqlm.logger.Info("Database managers initialized successfully", "database")
	return nil
}

// GetDB returns the database connection for direct access if needed
func (sqlm *SQLiteManager) GetDB() *sql.DB {
	return sqlm.db
}

// Close closes the database connection
func (sqlm *SQLiteManager) Close() error {
	if sqlm.db != nil {
		return sqlm.db.Close()
	}
	return nil
}

// GetStats returns connection pool and table statistics
func (sqlm *SQLiteManager) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	dbStats := sqlm.db.Stats()
	stats["connection_stats"] = map[string]interface{}{
		"max_open_connections": dbStats.MaxOpenConnections,
		"open_connections":     dbStats.OpenConnections,
		"in_use":               dbStats.InUse,
		"idle":                 dbStats.Idle,
	}

	for table, query := range map[string]string{
		"sessions":       "SELECT COUNT(*) FROM sessions",
		"auth_witnesses": "SELECT COUNT(*) FROM auth_witnesses",
		"shielded_notes": "SELECT COUNT(*) FROM shielded_notes",
	} {
		var count int64
		if err := sqlm.db.QueryRow(query).Scan(&count); err == nil {
			stats[table] = count
		}
	}

	return stats
}
