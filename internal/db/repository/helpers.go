// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"sandboxd/internal/domain"
)

const timeLayout = time.RFC3339Nano

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nowText() string {
	return time.Now().UTC().Format(timeLayout)
}

// parseTime reads timestamps written by Go (RFC 3339) and by SQLite defaults
// (datetime('now')).
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &domain.ConflictError{Message: "resource already exists"}
	}
	return err
}
