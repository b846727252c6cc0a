package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"viewflow/pkg/errors"
)

// Direct runs statements over a database/sql connection instead of the
// remote service, for local runs and CI against a reachable warehouse.
// Statements complete synchronously, so every response is terminal and
// GetStatus has nothing to poll. The driver is chosen by the caller;
// Direct itself is driver-agnostic.
type Direct struct {
	db *sql.DB
}

// NewDirect wraps an open database handle.
func NewDirect(db *sql.DB) *Direct {
	return &Direct{db: db}
}

// OpenDirect opens a database/sql connection for the named driver.
// The driver must be registered by the importing program.
func OpenDirect(driver, dsn string) (*Direct, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExecutorProtocol,
			fmt.Sprintf("failed to open %s connection", driver))
	}
	return &Direct{db: db}, nil
}

// Close releases the underlying connection.
func (d *Direct) Close() error {
	return d.db.Close()
}

// Execute runs one statement and returns a terminal response. A failed
// statement yields StateFailed with the driver's message rather than a
// Go error, matching the remote service's reporting.
func (d *Direct) Execute(ctx context.Context, req StatementRequest) (*StatementResponse, error) {
	if returnsRows(req.Statement) {
		rows, err := d.db.QueryContext(ctx, req.Statement)
		if err != nil {
			return &StatementResponse{State: StateFailed, Error: err.Error()}, nil
		}
		defer rows.Close()

		results, err := scanRows(rows)
		if err != nil {
			return &StatementResponse{State: StateFailed, Error: err.Error()}, nil
		}
		return &StatementResponse{State: StateSucceeded, Rows: results}, nil
	}

	if _, err := d.db.ExecContext(ctx, req.Statement); err != nil {
		return &StatementResponse{State: StateFailed, Error: err.Error()}, nil
	}
	return &StatementResponse{State: StateSucceeded}, nil
}

// GetStatus is unsupported: direct statements complete within Execute.
func (d *Direct) GetStatus(ctx context.Context, statementID string) (*StatementResponse, error) {
	return nil, errors.New(errors.ErrCodeInvalidInput,
		"direct executor completes statements synchronously; nothing to poll")
}

func returnsRows(statement string) bool {
	head := strings.ToUpper(strings.TrimSpace(statement))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			v := values[i]
			// drivers hand back []byte for text columns
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
