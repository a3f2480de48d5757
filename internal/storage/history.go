package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nodemailer/nodemailer/internal/messaging"
)

// ErrAmbiguousID is returned when an ID prefix matches more than one record
var ErrAmbiguousID = errors.New("ambiguous id")

// MailRecord is one received mail in the history
type MailRecord struct {
	ID string
	messaging.Mail
	ReceivedAt time.Time
}

// InsertMail stores a received mail and returns the new record
func (d *DB) InsertMail(m messaging.Mail, receivedAt time.Time) (MailRecord, error) {
	rec := MailRecord{
		ID:         uuid.NewString(),
		Mail:       m,
		ReceivedAt: receivedAt,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`
		INSERT INTO mail_history (id, sender_name, message, node_string, timestamp, received_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, m.SenderName, m.Message, m.NodeString, m.Timestamp, receivedAt.Unix(),
	)
	if err != nil {
		return MailRecord{}, fmt.Errorf("insert mail: %w", err)
	}
	return rec, nil
}

// ListMail returns up to limit records, newest first. limit <= 0 returns all.
func (d *DB) ListMail(limit int) ([]MailRecord, error) {
	query := `
		SELECT id, sender_name, message, node_string, timestamp, received_at
		FROM mail_history ORDER BY received_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mail: %w", err)
	}
	defer rows.Close()

	var out []MailRecord
	for rows.Next() {
		rec, err := scanMail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetMail returns the record whose ID is id or starts with id
func (d *DB) GetMail(id string) (MailRecord, error) {
	if id == "" {
		return MailRecord{}, fmt.Errorf("mail %w", ErrNotFound)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	rows, err := d.db.Query(`
		SELECT id, sender_name, message, node_string, timestamp, received_at
		FROM mail_history WHERE id = ? OR id LIKE ? LIMIT 2`,
		id, likePrefix(id))
	if err != nil {
		return MailRecord{}, fmt.Errorf("get mail: %w", err)
	}
	defer rows.Close()

	var found []MailRecord
	for rows.Next() {
		rec, err := scanMail(rows)
		if err != nil {
			return MailRecord{}, err
		}
		if rec.ID == id {
			return rec, nil
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return MailRecord{}, fmt.Errorf("get mail: %w", err)
	}

	switch len(found) {
	case 0:
		return MailRecord{}, fmt.Errorf("mail %s %w", id, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return MailRecord{}, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// DeleteMail removes a record by ID or unique ID prefix
func (d *DB) DeleteMail(id string) error {
	rec, err := d.GetMail(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.db.Exec(`DELETE FROM mail_history WHERE id = ?`, rec.ID); err != nil {
		return fmt.Errorf("delete mail: %w", err)
	}
	return nil
}

// CountMail returns the number of stored records
func (d *DB) CountMail() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM mail_history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mail: %w", err)
	}
	return n, nil
}

func scanMail(rows *sql.Rows) (MailRecord, error) {
	var rec MailRecord
	var received int64
	if err := rows.Scan(&rec.ID, &rec.SenderName, &rec.Message, &rec.NodeString,
		&rec.Timestamp, &received); err != nil {
		return MailRecord{}, fmt.Errorf("scan mail: %w", err)
	}
	rec.ReceivedAt = time.Unix(received, 0)
	return rec, nil
}

// likePrefix builds a LIKE pattern matching ids that start with s.
// UUIDs never contain wildcards, so they are stripped from user input.
func likePrefix(s string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``).Replace(s) + "%"
}
