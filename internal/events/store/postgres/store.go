package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"proofdrop/internal/events"
	"proofdrop/internal/platform/database"
	id "proofdrop/pkg/domain"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event events.Event) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	_, err = database.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO events (id, name, attributes, request_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, uuid.UUID(event.ID), string(event.Name), attrs, event.RequestID, event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, filter events.Filter) ([]events.Event, error) {
	query := `SELECT id, name, attributes, request_id, occurred_at FROM events`
	args := []any{}
	if filter.Name != "" {
		query += ` WHERE name = $1`
		args = append(args, string(filter.Name))
	}
	query += ` ORDER BY occurred_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := database.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e     events.Event
			eid   uuid.UUID
			name  string
			attrs []byte
		)
		if err := rows.Scan(&eid, &name, &attrs, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
		e.ID = id.EventID(eid)
		e.Name = events.Name(name)
		out = append(out, e)
	}
	return out, rows.Err()
}
