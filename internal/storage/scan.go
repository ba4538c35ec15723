package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asjpl/pcl-portal/internal/models"
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func formatDate(t time.Time) string {
	return models.DayUTC(t).Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(models.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored date %q: %w", s, err)
	}
	return t, nil
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid stored id %q: %w", s, err)
	}
	return id, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
