package versioned

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

const recordsDDL = `CREATE TABLE IF NOT EXISTS records (
	key     TEXT PRIMARY KEY,
	edition INTEGER NOT NULL,
	value   BLOB
)`

const busyTimeoutMs = 5000

// SQLStore keeps records in sqlite. Conditional updates are a single
// UPDATE guarded by the edition column.
type SQLStore struct {
	db *sql.DB
	// serializes writes from this process
	wmu sync.Mutex
}

func OpenSQLStore(dsn string) (*SQLStore, error) {
	inMemory := strings.Contains(strings.ToLower(dsn), ":memory:")
	if !inMemory {
		dsn = withPragmas(dsn)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(recordsDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %v", err)
	}
	return &SQLStore{db: db}, nil
}

// withPragmas adds WAL journaling and a busy timeout to a file DSN unless
// the caller set them.
func withPragmas(dsn string) string {
	lower := strings.ToLower(dsn)
	if !strings.Contains(lower, "_pragma=journal_mode") {
		dsn = addPragma(dsn, "journal_mode(WAL)")
	}
	if !strings.Contains(lower, "_pragma=busy_timeout") {
		dsn = addPragma(dsn, fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs))
	}
	return dsn
}

func addPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}

func (s *SQLStore) Get(key string) (Record, error) {
	rec := Record{Key: key}
	err := s.db.QueryRow(`SELECT edition, value FROM records WHERE key = ?`, key).Scan(&rec.Edition, &rec.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return rec, err
}

func (s *SQLStore) Create(key string, value []byte) (Record, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	res, err := s.db.Exec(`INSERT OR IGNORE INTO records (key, edition, value) VALUES (?, ?, ?)`, key, firstEdition, value)
	if err != nil {
		return Record{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Record{}, err
	} else if n == 0 {
		return Record{}, fmt.Errorf("%s: %w", key, ErrExists)
	}
	return Record{Key: key, Edition: firstEdition, Value: value}, nil
}

func (s *SQLStore) Update(key string, edition int64, value []byte) (Record, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	res, err := s.db.Exec(`UPDATE records SET edition = edition + 1, value = ? WHERE key = ? AND edition = ?`,
		value, key, edition)
	if err != nil {
		return Record{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Record{}, err
	}
	if n == 0 {
		curr, err := s.Get(key)
		if err != nil {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("%s at edition %d, update based on %d: %w", key, curr.Edition, edition, ErrStaleEdition)
	}
	return Record{Key: key, Edition: edition + 1, Value: value}, nil
}

func (s *SQLStore) Scan(prefix string, fn func(Record) bool) error {
	rows, err := s.db.Query(`SELECT key, edition, value FROM records WHERE substr(key, 1, ?) = ? ORDER BY key`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return err
	}
	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Edition, &rec.Value); err != nil {
			_ = rows.Close()
			return err
		}
		recs = append(recs, rec)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, rec := range recs {
		if !fn(rec) {
			break
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
