package postgres

import (
	"context"
	"fmt"
)

// InitCounter creates the invoice counter row when none exists. It reports
// whether a row was created. An existing counter is left untouched.
func InitCounter(ctx context.Context, db DBTX, prefix string, lastNumber int64) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO invoice_counter (prefix, last_number)
		SELECT $1, $2
		WHERE NOT EXISTS (SELECT 1 FROM invoice_counter)
	`, prefix, lastNumber)
	if err != nil {
		return false, fmt.Errorf("init invoice counter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
