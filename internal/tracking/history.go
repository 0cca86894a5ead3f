package tracking

import (
	"database/sql"
	"fmt"
	"time"
)

// EventRecord is one stored playback transition
type EventRecord struct {
	ID        int64         `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	Player    string        `json:"player"`
	Source    string        `json:"source"`
	Kind      string        `json:"kind"`
	From      string        `json:"from"`
	To        string        `json:"to"`
	Position  time.Duration `json:"position"`
	Error     string        `json:"error,omitempty"`
}

// SourceStat aggregates the history of one source
type SourceStat struct {
	Source      string    `json:"source"`
	Plays       int       `json:"plays"`
	Completions int       `json:"completions"`
	Errors      int       `json:"errors"`
	LastSeen    time.Time `json:"last_seen"`
}

// RecentEvents returns the newest events first
func RecentEvents(db *sql.DB, filter QueryFilter) ([]EventRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT id, timestamp, session_id, player, source, kind, from_state, to_state, position_ms, error
		FROM playback_events`
	whereClause, args := filter.BuildWhereClause(time.Now())
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, filter.limit())

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query playback events: %w", err)
	}
	defer rows.Close()

	var results []EventRecord
	for rows.Next() {
		var rec EventRecord
		var millis, positionMs int64
		var errText sql.NullString
		if err := rows.Scan(&rec.ID, &millis, &rec.SessionID, &rec.Player, &rec.Source,
			&rec.Kind, &rec.From, &rec.To, &positionMs, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan playback event row: %w", err)
		}
		rec.Timestamp = time.UnixMilli(millis)
		rec.Position = time.Duration(positionMs) * time.Millisecond
		rec.Error = errText.String
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating playback event rows: %w", err)
	}
	return results, nil
}

// SourceStats summarizes plays, completed plays and failures per source,
// most played first
func SourceStats(db *sql.DB, filter QueryFilter) ([]SourceStat, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := `
		SELECT
			source,
			SUM(CASE WHEN kind = 'play' AND from_state != 'paused' THEN 1 ELSE 0 END) AS plays,
			SUM(CASE WHEN kind = 'exhausted' THEN 1 ELSE 0 END) AS completions,
			SUM(CASE WHEN kind = 'error' THEN 1 ELSE 0 END) AS errors,
			MAX(timestamp) AS last_seen
		FROM playback_events`
	whereClause, args := filter.BuildWhereClause(time.Now())
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += `
		GROUP BY source
		ORDER BY plays DESC, source ASC
		LIMIT ?`
	args = append(args, filter.limit())

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query source stats: %w", err)
	}
	defer rows.Close()

	var results []SourceStat
	for rows.Next() {
		var stat SourceStat
		var lastSeen int64
		if err := rows.Scan(&stat.Source, &stat.Plays, &stat.Completions, &stat.Errors, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan source stat row: %w", err)
		}
		stat.LastSeen = time.UnixMilli(lastSeen)
		results = append(results, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source stat rows: %w", err)
	}
	return results, nil
}
