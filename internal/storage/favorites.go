package storage

import "fmt"

// Get returns the favorited peer names (favorites store interface)
func (d *DB) Get() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT name FROM favorites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Set replaces the favorited peer names in one transaction
func (d *DB) Set(names []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM favorites`); err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO favorites (name) VALUES (?)`, n); err != nil {
			return fmt.Errorf("insert favorite: %w", err)
		}
	}
	return tx.Commit()
}
