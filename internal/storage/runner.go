package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
)

// RunReadOnlyQuery executes one statement on behalf of the external
// text-to-SQL tool and returns column names with stringified rows. The
// statement runs in a read-only transaction, so the tool shares the store's
// tables without any way to mutate them.
func (s *Store) RunReadOnlyQuery(ctx context.Context, query string) ([]string, [][]string, error) {
	s.logger.Debugf("Running read-only query for external tool")

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(context.Background())

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var result [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, err
		}

		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				continue
			}
			row[i] = fmt.Sprint(v)
		}
		result = append(result, row)
	}

	if rows.Err() != nil {
		return nil, nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	return columns, result, nil
}
