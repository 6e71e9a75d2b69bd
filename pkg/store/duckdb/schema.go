package duckdb

import (
	"context"
	"fmt"
)

// CreateBarsTable creates the bars fact table.
// A bar is identified by the file it was loaded from and its row within
// that file, so bars sharing a timestamp are kept apart. Ordering by
// (source, row_num) reproduces the directory loader's order because source
// names compare byte-wise in both places.
const CreateBarsTable = `
CREATE TABLE IF NOT EXISTS bars (
    symbol VARCHAR NOT NULL,
    timeframe VARCHAR NOT NULL,
    source VARCHAR NOT NULL,
    row_num BIGINT NOT NULL,
    ts TIMESTAMP NOT NULL,
    open DOUBLE,
    high DOUBLE,
    low DOUBLE,
    close DOUBLE,
    volume DOUBLE,
    PRIMARY KEY (symbol, timeframe, source, row_num)
);
`

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	for _, schema := range []string{CreateBarsTable} {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
