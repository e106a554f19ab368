package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Journal is an append-only SQLite log of routed messages and the per-recipient
// outcome of each. It records history only; session state never touches it.
type Journal struct {
	conn *sql.DB
	ids  *IDGenerator
	log  zerolog.Logger
}

// Route is one journaled send_message with its recipients in request order
type Route struct {
	ID         int64
	Sender     string
	Text       string
	CreatedAt  time.Time
	Deliveries []Delivery
}

// Delivery is the outcome for one recipient of a Route
type Delivery struct {
	Recipient string
	Delivered bool
}

// OpenJournal opens (creating if needed) the journal database at path and
// brings its schema up to date
func OpenJournal(path string, logger zerolog.Logger) (*Journal, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite allows one writer; a single connection keeps writes serialized
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(conn, logger); err != nil {
		conn.Close()
		return nil, err
	}

	return &Journal{
		conn: conn,
		ids:  NewIDGenerator(),
		log:  logger,
	}, nil
}

// Close closes the underlying database
func (j *Journal) Close() error {
	return j.conn.Close()
}

// RecordRoute stores one routed message. delivered and undelivered are written
// in that order, each keeping the order it was given in. Returns the route ID.
func (j *Journal) RecordRoute(sender, text string, delivered, undelivered []string) (int64, error) {
	id := j.ids.Next()

	tx, err := j.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO Route (id, sender, text, created_at) VALUES (?, ?, ?, ?)",
		id, sender, text, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert route: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO Delivery (route_id, position, recipient, delivered) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delivery insert: %w", err)
	}
	defer stmt.Close()

	position := 0
	insert := func(names []string, outcome int) error {
		for _, name := range names {
			if _, err := stmt.Exec(id, position, name, outcome); err != nil {
				return fmt.Errorf("failed to insert delivery for %s: %w", name, err)
			}
			position++
		}
		return nil
	}
	if err := insert(delivered, 1); err != nil {
		return 0, err
	}
	if err := insert(undelivered, 0); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit route: %w", err)
	}

	j.log.Debug().Int64("route_id", id).Str("user", sender).Int("recipients", position).Msg("journaled route")
	return id, nil
}

// RecentRoutes returns up to limit routes, newest first
func (j *Journal) RecentRoutes(limit int) ([]Route, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := j.conn.Query(
		"SELECT id, sender, text, created_at FROM Route ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}

	var routes []Route
	for rows.Next() {
		var r Route
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.Sender, &r.Text, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdAt)
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range routes {
		deliveries, err := j.deliveries(routes[i].ID)
		if err != nil {
			return nil, err
		}
		routes[i].Deliveries = deliveries
	}
	return routes, nil
}

// DeliveriesTo counts journaled deliveries addressed to recipient, split by outcome
func (j *Journal) DeliveriesTo(recipient string) (delivered, undelivered int, err error) {
	err = j.conn.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN delivered = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN delivered = 0 THEN 1 ELSE 0 END), 0)
		FROM Delivery WHERE recipient = ?`,
		recipient,
	).Scan(&delivered, &undelivered)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}
	return delivered, undelivered, nil
}

func (j *Journal) deliveries(routeID int64) ([]Delivery, error) {
	rows, err := j.conn.Query(
		"SELECT recipient, delivered FROM Delivery WHERE route_id = ? ORDER BY position",
		routeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.Recipient, &d.Delivered); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
