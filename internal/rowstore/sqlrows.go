package rowstore

import (
	"database/sql"
	"fmt"
	"strconv"
)

// CollectRows drains a *sql.Rows into []Row, one map per record. []byte cell
// values are copied to string so rows outlive the driver's scan buffers.
// Shared by every database/sql-backed reader.
func CollectRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("rowstore: columns: %w", err)
	}

	var out []Row
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("rowstore: scan: %w", err)
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			switch v := vals[i].(type) {
			case []byte:
				r[c] = string(v)
			default:
				r[c] = v
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: iterate: %w", err)
	}
	return out, nil
}

// CollectCounts scans the single row of an aggregate COUNT query into a
// per-column map, positional by the order columns were selected. An empty
// result reads as all-zero. Shared by the database/sql-backed readers.
func CollectCounts(rows *sql.Rows, columns []string) (map[string]int, error) {
	counts := make(map[string]int, len(columns))
	for _, c := range columns {
		counts[c] = 0
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rowstore: count: %w", err)
		}
		return counts, nil
	}

	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("rowstore: count scan: %w", err)
	}

	for i, c := range columns {
		switch v := vals[i].(type) {
		case int64:
			counts[c] = int(v)
		case []byte:
			n, err := strconv.ParseInt(string(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("rowstore: count for %s: %w", c, err)
			}
			counts[c] = int(n)
		case nil:
		default:
			return nil, fmt.Errorf("rowstore: count for %s: unexpected type %T", c, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rowstore: count: %w", err)
	}
	return counts, nil
}
