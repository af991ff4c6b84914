package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrButtonNotFound = errors.New("button not found")
	ErrButtonInvalid  = errors.New("button input is invalid")
)

// Button is one row of the deck layout table. The column layout matches the
// spreadsheet export the load script writes.
type Button struct {
	ID             int64
	Label          string
	Command        string
	Flags          string
	MonitorKeyword string
}

type CreateButtonInput struct {
	Label          string
	Command        string
	Flags          string
	MonitorKeyword string
}

type UpdateButtonInput struct {
	ID             int64
	Label          string
	Command        string
	Flags          string
	MonitorKeyword string
}

func (s *Store) ListButtons(ctx context.Context) ([]Button, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, label, command, flags, monitor_keyword FROM streamdeck ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list buttons: %w", err)
	}
	defer rows.Close()

	var buttons []Button
	for rows.Next() {
		var b Button
		if err := rows.Scan(&b.ID, &b.Label, &b.Command, &b.Flags, &b.MonitorKeyword); err != nil {
			return nil, fmt.Errorf("scan button: %w", err)
		}
		buttons = append(buttons, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buttons: %w", err)
	}
	return buttons, nil
}

func (s *Store) GetButton(ctx context.Context, id int64) (Button, error) {
	var b Button
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.QueryRowContext(
		ctx,
		`SELECT id, label, command, flags, monitor_keyword FROM streamdeck WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Label, &b.Command, &b.Flags, &b.MonitorKeyword)
	if errors.Is(err, sql.ErrNoRows) {
		return Button{}, ErrButtonNotFound
	}
	if err != nil {
		return Button{}, fmt.Errorf("get button: %w", err)
	}
	return b, nil
}

func (s *Store) InsertButton(ctx context.Context, input CreateButtonInput) (Button, error) {
	record := Button{
		Label:          strings.TrimSpace(input.Label),
		Command:        input.Command,
		Flags:          strings.TrimSpace(input.Flags),
		MonitorKeyword: strings.TrimSpace(input.MonitorKeyword),
	}
	if record.Label == "" {
		return Button{}, ErrButtonInvalid
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, err := s.db.ExecContext(
		ctx,
		`INSERT INTO streamdeck (label, command, flags, monitor_keyword) VALUES (?, ?, ?, ?)`,
		record.Label,
		record.Command,
		record.Flags,
		record.MonitorKeyword,
	)
	if err != nil {
		return Button{}, fmt.Errorf("insert button: %w", err)
	}
	record.ID, err = result.LastInsertId()
	if err != nil {
		return Button{}, fmt.Errorf("insert button id: %w", err)
	}
	return record, nil
}

func (s *Store) UpdateButton(ctx context.Context, input UpdateButtonInput) (Button, error) {
	record := Button{
		ID:             input.ID,
		Label:          strings.TrimSpace(input.Label),
		Command:        input.Command,
		Flags:          strings.TrimSpace(input.Flags),
		MonitorKeyword: strings.TrimSpace(input.MonitorKeyword),
	}
	if record.ID <= 0 || record.Label == "" {
		return Button{}, ErrButtonInvalid
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, err := s.db.ExecContext(
		ctx,
		`UPDATE streamdeck SET label = ?, command = ?, flags = ?, monitor_keyword = ? WHERE id = ?`,
		record.Label,
		record.Command,
		record.Flags,
		record.MonitorKeyword,
		record.ID,
	)
	if err != nil {
		return Button{}, fmt.Errorf("update button: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Button{}, fmt.Errorf("update button rows: %w", err)
	}
	if affected == 0 {
		return Button{}, ErrButtonNotFound
	}
	return record, nil
}

func (s *Store) DeleteButton(ctx context.Context, id int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, err := s.db.ExecContext(ctx, `DELETE FROM streamdeck WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete button: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete button rows: %w", err)
	}
	if affected == 0 {
		return ErrButtonNotFound
	}
	return nil
}
