package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunogya/dipscope/pkg/model"
)

const upsertBar = `
	INSERT INTO bars (symbol, timeframe, source, row_num, ts, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (symbol, timeframe, source, row_num) DO UPDATE SET
		ts = EXCLUDED.ts,
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume
`

const selectBars = `
	SELECT symbol, timeframe, ts, open, high, low, close, volume
	FROM bars
`

// SourceRows is a run of consecutive bars from one source file.
// Offset is the row of the first bar within the file. Total, when
// positive, is the file's full row count; stored rows at or beyond it
// belong to an older, longer version of the file and are removed.
type SourceRows struct {
	Source string
	Offset int
	Total  int
	Bars   []model.Bar
}

// BarRepo handles bar persistence. It also serves as a data.BarProvider.
type BarRepo struct {
	client *Client
}

// NewBarRepo creates a new bar repository
func NewBarRepo(client *Client) *BarRepo {
	return &BarRepo{client: client}
}

// InsertBatch upserts bars in a transaction, keyed by source file and row.
// Importing the same rows again replaces them in place.
func (r *BarRepo) InsertBatch(ctx context.Context, rows SourceRows) error {
	if rows.Source == "" {
		return fmt.Errorf("bar batch has no source")
	}
	if len(rows.Bars) == 0 && rows.Total <= 0 {
		return nil
	}

	return r.client.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertBar)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i, b := range rows.Bars {
			_, err := stmt.ExecContext(ctx,
				b.Symbol, b.Timeframe, rows.Source, int64(rows.Offset+i), b.Timestamp,
				b.Open, b.High, b.Low, b.Close, b.Volume,
			)
			if err != nil {
				return fmt.Errorf("failed to insert bar: %w", err)
			}
		}

		if rows.Total > 0 {
			_, err := tx.ExecContext(ctx,
				"DELETE FROM bars WHERE source = ? AND row_num >= ?",
				rows.Source, int64(rows.Total),
			)
			if err != nil {
				return fmt.Errorf("failed to trim source rows: %w", err)
			}
		}
		return nil
	})
}

// FetchBars retrieves all bars for a symbol/timeframe in load order
func (r *BarRepo) FetchBars(ctx context.Context, symbol, timeframe string) ([]model.Bar, error) {
	query := selectBars + `
		WHERE (? = '' OR symbol = ?) AND (? = '' OR timeframe = ?)
		ORDER BY symbol, timeframe, source, row_num
	`
	rows, err := r.client.Query(ctx, query, symbol, symbol, timeframe, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	return scanBars(rows)
}

// FetchLatestBars retrieves the most recent N bars, oldest first
func (r *BarRepo) FetchLatestBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error) {
	query := selectBars + `
		WHERE (? = '' OR symbol = ?) AND (? = '' OR timeframe = ?)
		ORDER BY symbol DESC, timeframe DESC, source DESC, row_num DESC
		LIMIT ?
	`
	rows, err := r.client.Query(ctx, query, symbol, symbol, timeframe, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}

	bars, err := scanBars(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get load order
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// Count returns the total number of bars for a symbol/timeframe
func (r *BarRepo) Count(ctx context.Context, symbol, timeframe string) (int64, error) {
	var count int64
	row := r.client.QueryRow(ctx,
		"SELECT COUNT(*) FROM bars WHERE symbol = ? AND timeframe = ?",
		symbol, timeframe,
	)
	err := row.Scan(&count)
	return count, err
}

func scanBars(rows *sql.Rows) ([]model.Bar, error) {
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var open, high, low, close, volume sql.NullFloat64

		err := rows.Scan(
			&b.Symbol, &b.Timeframe, &b.Timestamp,
			&open, &high, &low, &close, &volume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}

		b.Open = open.Float64
		b.High = high.Float64
		b.Low = low.Float64
		b.Close = close.Float64
		b.Volume = volume.Float64
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars: %w", err)
	}

	return bars, nil
}
