package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/user/pingcheck/internal/model"
)

// ErrSetNotFound is returned when no target set has the requested name.
var ErrSetNotFound = errors.New("target set not found")

// SetSummary describes a saved set without its targets.
type SetSummary struct {
	ID        int64
	Name      string
	Source    string
	Count     int
	CreatedAt time.Time
}

// TargetSetStorage handles saved target set persistence.
type TargetSetStorage struct {
	db *DB
}

// NewTargetSetStorage creates a new target set storage handler.
func NewTargetSetStorage(db *DB) *TargetSetStorage {
	return &TargetSetStorage{db: db}
}

// SaveSet stores set under its name, replacing any set of the same name.
// Target order is preserved. set.ID is updated.
func (s *TargetSetStorage) SaveSet(set *model.TargetSet) error {
	if set.Name == "" {
		return fmt.Errorf("target set name is empty")
	}

	return s.db.WithLock(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec("DELETE FROM target_sets WHERE name = ?", set.Name); err != nil {
			return fmt.Errorf("failed to replace set: %w", err)
		}

		result, err := tx.Exec("INSERT INTO target_sets (name, source, created_at) VALUES (?, ?, ?)",
			set.Name, set.Source, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to save set: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get set id: %w", err)
		}

		stmt, err := tx.Prepare("INSERT INTO targets (set_id, position, name, host, port) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range set.Targets {
			var port sql.NullInt64
			if t.Port != nil {
				port = sql.NullInt64{Int64: int64(*t.Port), Valid: true}
			}
			if _, err := stmt.Exec(id, i, t.Name, t.Host, port); err != nil {
				return fmt.Errorf("failed to save target %q: %w", t.Name, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
		set.ID = id
		return nil
	})
}

// LoadSet returns the set with the given name and its targets in order.
func (s *TargetSetStorage) LoadSet(name string) (*model.TargetSet, error) {
	set := &model.TargetSet{Name: name}

	err := s.db.WithRLock(func() error {
		var source sql.NullString
		err := s.db.QueryRow("SELECT id, source FROM target_sets WHERE name = ?", name).
			Scan(&set.ID, &source)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrSetNotFound, name)
		}
		if err != nil {
			return fmt.Errorf("failed to get set: %w", err)
		}
		set.Source = source.String

		rows, err := s.db.Query(`SELECT name, host, port FROM targets
			WHERE set_id = ? ORDER BY position`, set.ID)
		if err != nil {
			return fmt.Errorf("failed to query targets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t model.Target
			var port sql.NullInt64
			if err := rows.Scan(&t.Name, &t.Host, &port); err != nil {
				return fmt.Errorf("failed to scan target: %w", err)
			}
			if port.Valid {
				t.Port = model.NewPort(uint16(port.Int64))
			}
			set.Targets = append(set.Targets, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// ListSets returns all saved sets ordered by name.
func (s *TargetSetStorage) ListSets() ([]SetSummary, error) {
	query := `SELECT s.id, s.name, s.source, s.created_at, COUNT(t.id)
			  FROM target_sets s LEFT JOIN targets t ON t.set_id = s.id
			  GROUP BY s.id ORDER BY s.name`

	var sets []SetSummary
	err := s.db.WithRLock(func() error {
		rows, err := s.db.Query(query)
		if err != nil {
			return fmt.Errorf("failed to query sets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var sum SetSummary
			var source sql.NullString
			if err := rows.Scan(&sum.ID, &sum.Name, &source, &sum.CreatedAt, &sum.Count); err != nil {
				return fmt.Errorf("failed to scan set: %w", err)
			}
			sum.Source = source.String
			sets = append(sets, sum)
		}
		return rows.Err()
	})
	return sets, err
}

// DeleteSet removes the named set and its targets.
func (s *TargetSetStorage) DeleteSet(name string) error {
	return s.db.WithLock(func() error {
		result, err := s.db.Exec("DELETE FROM target_sets WHERE name = ?", name)
		if err != nil {
			return fmt.Errorf("failed to delete set: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete set: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrSetNotFound, name)
		}
		return nil
	})
}
