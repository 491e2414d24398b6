package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/dormpower/pkg/models"
	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02 15:04:05"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	loc  *time.Location // calendar-day boundaries for dedupe
}

// DailyAverage is the mean balance recorded on one calendar day
type DailyAverage struct {
	Date       time.Time
	AvgBalance float64
	Samples    int
}

// New creates a new database connection and initializes the schema.
// Calendar days are evaluated in the local time zone.
func New(dbPath string) (*DB, error) {
	return NewInLocation(dbPath, time.Local)
}

// NewInLocation is New with an explicit zone for calendar-day boundaries
func NewInLocation(dbPath string, loc *time.Location) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The monitor saves from several goroutines; serialize writers
	conn.SetMaxOpenConns(1)

	// watch writes while list/status read from another process
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	db := &DB{conn: conn, loc: loc}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dorm_id TEXT NOT NULL,
		dorm_name TEXT,
		query_time TEXT NOT NULL,
		balance REAL NOT NULL,
		created_at TEXT NOT NULL,
		published INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_readings_dorm_time ON readings(dorm_id, query_time);
	CREATE INDEX IF NOT EXISTS idx_readings_published ON readings(published);

	CREATE TABLE IF NOT EXISTS settlements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dorm_id TEXT NOT NULL,
		settled_at TEXT NOT NULL,
		kwh REAL NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(dorm_id, settled_at)
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveReading stores a reading unless one already exists for the same dorm
// on the same calendar day. It reports whether a row was inserted and sets
// r.ID when it was.
func (db *DB) SaveReading(r *models.Reading) (bool, error) {
	query := `
	INSERT INTO readings (dorm_id, dorm_name, query_time, balance, created_at)
	SELECT ?, ?, ?, ?, ?
	WHERE NOT EXISTS (
		SELECT 1 FROM readings WHERE dorm_id = ? AND substr(query_time, 1, 10) = ?
	)
	`

	ts := r.Timestamp.In(db.loc)
	day := ts.Format("2006-01-02")
	createdAt := time.Now().UTC().Format(time.RFC3339)

	res, err := db.conn.Exec(query, r.DormID, r.DormName, ts.Format(timeLayout), r.BalanceKWh, createdAt, r.DormID, day)
	if err != nil {
		return false, fmt.Errorf("inserting reading: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return true, fmt.Errorf("reading inserted id: %w", err)
	}
	r.ID = int(id)
	return true, nil
}

// LatestReading returns the most recent reading for a dorm, or nil if none
func (db *DB) LatestReading(dormID string) (*models.Reading, error) {
	query := `
	SELECT id, dorm_id, dorm_name, query_time, balance
	FROM readings
	WHERE dorm_id = ?
	ORDER BY query_time DESC
	LIMIT 1
	`

	rows, err := db.conn.Query(query, dormID)
	if err != nil {
		return nil, fmt.Errorf("querying latest reading: %w", err)
	}
	defer rows.Close()

	results, err := db.scanReadings(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// ListReadings retrieves readings for a dorm at or after since, oldest first.
// A zero since returns the full history.
func (db *DB) ListReadings(dormID string, since time.Time) ([]models.Reading, error) {
	query := `
	SELECT id, dorm_id, dorm_name, query_time, balance
	FROM readings
	WHERE dorm_id = ? AND query_time >= ?
	ORDER BY query_time ASC
	`

	var sinceStr string
	if !since.IsZero() {
		sinceStr = since.In(db.loc).Format(timeLayout)
	}

	rows, err := db.conn.Query(query, dormID, sinceStr)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	return db.scanReadings(rows)
}

// ListUnpublished retrieves readings not yet sent to Home Assistant/MQTT, oldest first
func (db *DB) ListUnpublished(dormID string) ([]models.Reading, error) {
	query := `
	SELECT id, dorm_id, dorm_name, query_time, balance
	FROM readings
	WHERE dorm_id = ? AND published = 0
	ORDER BY query_time ASC
	`

	rows, err := db.conn.Query(query, dormID)
	if err != nil {
		return nil, fmt.Errorf("querying unpublished readings: %w", err)
	}
	defer rows.Close()

	return db.scanReadings(rows)
}

// MarkPublished marks a reading as published
func (db *DB) MarkPublished(id int) error {
	query := `UPDATE readings SET published = 1 WHERE id = ?`
	if _, err := db.conn.Exec(query, id); err != nil {
		return fmt.Errorf("marking reading as published: %w", err)
	}
	return nil
}

// DailyAverages returns the mean balance per calendar day for the most
// recent days that have readings, newest first
func (db *DB) DailyAverages(dormID string, days int) ([]DailyAverage, error) {
	query := `
	SELECT substr(query_time, 1, 10) AS day, AVG(balance), COUNT(*)
	FROM readings
	WHERE dorm_id = ?
	GROUP BY day
	ORDER BY day DESC
	LIMIT ?
	`

	rows, err := db.conn.Query(query, dormID, days)
	if err != nil {
		return nil, fmt.Errorf("querying daily averages: %w", err)
	}
	defer rows.Close()

	var results []DailyAverage
	for rows.Next() {
		var avg DailyAverage
		var dayStr string
		if err := rows.Scan(&dayStr, &avg.AvgBalance, &avg.Samples); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		avg.Date, err = time.ParseInLocation("2006-01-02", dayStr, db.loc)
		if err != nil {
			return nil, fmt.Errorf("parsing date: %w", err)
		}
		results = append(results, avg)
	}

	return results, rows.Err()
}

// SaveSettlements stores settlement rows, ignoring ones already recorded.
// It returns the number of new rows.
func (db *DB) SaveSettlements(dormID string, settlements []models.Settlement) (int, error) {
	query := `
	INSERT OR IGNORE INTO settlements (dorm_id, settled_at, kwh, created_at)
	VALUES (?, ?, ?, ?)
	`

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, s := range settlements {
		res, err := tx.Exec(query, dormID, s.SettledAt.In(db.loc).Format(timeLayout), s.KWh, createdAt)
		if err != nil {
			return 0, fmt.Errorf("inserting settlement: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing settlements: %w", err)
	}
	return inserted, nil
}

// ListSettlements retrieves stored settlements for a dorm, newest first
func (db *DB) ListSettlements(dormID string) ([]models.Settlement, error) {
	query := `
	SELECT dorm_id, settled_at, kwh
	FROM settlements
	WHERE dorm_id = ?
	ORDER BY settled_at DESC
	`

	rows, err := db.conn.Query(query, dormID)
	if err != nil {
		return nil, fmt.Errorf("querying settlements: %w", err)
	}
	defer rows.Close()

	var results []models.Settlement
	for rows.Next() {
		var s models.Settlement
		var settledStr string
		if err := rows.Scan(&s.DormID, &settledStr, &s.KWh); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		s.SettledAt, err = time.ParseInLocation(timeLayout, settledStr, db.loc)
		if err != nil {
			return nil, fmt.Errorf("parsing settled_at: %w", err)
		}
		results = append(results, s)
	}

	return results, rows.Err()
}

func (db *DB) scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	var results []models.Reading
	for rows.Next() {
		var r models.Reading
		var timeStr string
		var name sql.NullString

		if err := rows.Scan(&r.ID, &r.DormID, &name, &timeStr, &r.BalanceKWh); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.DormName = name.String

		ts, err := time.ParseInLocation(timeLayout, timeStr, db.loc)
		if err != nil {
			return nil, fmt.Errorf("parsing query_time: %w", err)
		}
		r.Timestamp = ts

		results = append(results, r)
	}

	return results, rows.Err()
}
