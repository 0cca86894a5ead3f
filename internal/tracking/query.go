package tracking

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tj/go-naturaldate"
)

const defaultLimit = 20

// QueryFilter narrows history queries. Zero fields do not filter.
type QueryFilter struct {
	Since      time.Time // events at or after this instant
	DatePreset string    // "today", "yesterday", "week", "month", "all"; wins over Since

	Source    string
	Kind      string
	SessionID string

	Limit int // 0 means the default of 20
}

// ApplyTimeFilter returns the lower and upper bound, in Unix milliseconds,
// selected by the filter. A zero start means no lower bound.
func (q *QueryFilter) ApplyTimeFilter(now time.Time) (startMillis, endMillis int64) {
	endMillis = now.UnixMilli()

	if q.DatePreset != "" {
		start, end, err := ParseDatePreset(q.DatePreset, now)
		if err != nil {
			slog.Warn("invalid date preset, using no time filter", "preset", q.DatePreset, "error", err)
			return 0, endMillis
		}
		if start.IsZero() {
			return 0, end.UnixMilli()
		}
		return start.UnixMilli(), end.UnixMilli()
	}

	if !q.Since.IsZero() {
		return q.Since.UnixMilli(), endMillis
	}
	return 0, endMillis
}

// BuildWhereClause constructs the SQL WHERE clause and its arguments
func (q *QueryFilter) BuildWhereClause(now time.Time) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if q.DatePreset != "" || !q.Since.IsZero() {
		startMillis, endMillis := q.ApplyTimeFilter(now)
		if startMillis > 0 {
			clauses = append(clauses, "timestamp >= ?")
			args = append(args, startMillis)
		}
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, endMillis)
	}

	if q.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, q.Source)
	}
	if q.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, q.SessionID)
	}

	whereClause := strings.Join(clauses, " AND ")
	slog.Debug("built where clause", "clause", whereClause, "arg_count", len(args))
	return whereClause, args
}

func (q *QueryFilter) limit() int {
	if q.Limit <= 0 {
		return defaultLimit
	}
	return q.Limit
}

// ParseDatePreset converts date preset strings to time ranges
func ParseDatePreset(preset string, now time.Time) (start, end time.Time, err error) {
	switch preset {
	case "today":
		start = beginningOfDay(now)
		end = now
	case "yesterday":
		start = beginningOfDay(now.AddDate(0, 0, -1))
		end = beginningOfDay(now)
	case "week", "this-week":
		start = beginningOfWeek(now)
		end = now
	case "last-week":
		start = beginningOfWeek(now).AddDate(0, 0, -7)
		end = beginningOfWeek(now)
	case "month", "this-month":
		start = beginningOfMonth(now)
		end = now
	case "last-month":
		start = beginningOfMonth(now).AddDate(0, -1, 0)
		end = beginningOfMonth(now)
	case "all", "all-time":
		end = now
	default:
		err = fmt.Errorf("unknown preset: %s", preset)
	}
	return
}

// ParseNaturalDate parses phrases such as "yesterday" or "3 days ago"
func ParseNaturalDate(naturalDate string, now time.Time) (time.Time, error) {
	result, err := naturaldate.Parse(naturalDate, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse natural date '%s': %w", naturalDate, err)
	}
	slog.Debug("parsed natural language date", "input", naturalDate, "result", result)
	return result, nil
}

// ParseSince fills the time part of a filter from user input: a preset
// name, an RFC 3339 timestamp or a natural language date
func ParseSince(input string, now time.Time) (QueryFilter, error) {
	var q QueryFilter
	input = strings.TrimSpace(input)
	if input == "" {
		return q, nil
	}

	if _, _, err := ParseDatePreset(input, now); err == nil {
		q.DatePreset = input
		return q, nil
	}
	if t, err := time.Parse(time.RFC3339, input); err == nil {
		q.Since = t
		return q, nil
	}
	t, err := ParseNaturalDate(input, now)
	if err != nil {
		return q, err
	}
	q.Since = t
	return q, nil
}

func beginningOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// beginningOfWeek returns Monday 00:00 of t's week
func beginningOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	return beginningOfDay(t.AddDate(0, 0, -int(weekday-1)))
}

func beginningOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
