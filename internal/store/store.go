// Package store persists the trade history to Postgres. It is optional: the
// engine journals every outcome to JSONL regardless, and this store mirrors
// executed fills into a queryable table when a DSN is configured. Reads go
// through a Redis-backed cache when cache nodes are configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlc"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"tradeagent/internal/config"
	"tradeagent/pkg/journal"
)

// Trade is one executed fill: an entry, a partial exit, a stop move or a
// close, as confirmed by the venue.
type Trade struct {
	ID             string    `db:"id"`
	SourceID       string    `db:"source_id"`
	PositionID     string    `db:"position_id"`
	OrderRef       string    `db:"order_ref"`
	Symbol         string    `db:"symbol"`
	Kind           string    `db:"kind"`
	Disposition    string    `db:"disposition"`
	Reason         string    `db:"reason"`
	FillPrice      float64   `db:"fill_price"`
	FilledQuantity float64   `db:"filled_quantity"`
	RealizedPnl    float64   `db:"realized_pnl"`
	ExecutedAt     time.Time `db:"executed_at"`
}

const tradeFields = `id, source_id, position_id, order_ref, symbol, kind, disposition, reason, fill_price, filled_quantity, realized_pnl, executed_at`

// Store records outcome events into the trades table.
type Store struct {
	conn   sqlx.SqlConn
	cached sqlc.CachedConn
	useCC  bool
	ttl    TTLSet
}

// New opens the trade-history store. An empty DSN is a configuration error;
// callers that run without Postgres simply do not construct a Store.
func New(pg config.PostgresConf, cacheConf cache.CacheConf, ttl TTLSet) (*Store, error) {
	if pg.DSN == "" {
		return nil, errors.New("store: postgres dsn is required")
	}
	conn := sqlx.NewSqlConn("pgx", pg.DSN)

	s := &Store{conn: conn, ttl: ttl}
	if len(cacheConf) > 0 {
		s.cached = sqlc.NewConn(conn, cacheConf,
			cache.WithExpiry(ttl.Medium),
			cache.WithNotFoundExpiry(ttl.Short),
		)
		s.useCC = true
	}
	return s, nil
}

// Record implements the engine's history hook. Only confirmed fills become
// trade rows; rejections and duplicates live in the JSONL journal alone.
func (s *Store) Record(ctx context.Context, rec *journal.Record) error {
	if rec == nil || rec.Disposition != journal.DispositionExecuted {
		return nil
	}

	trade := Trade{
		ID:             uuid.NewString(),
		SourceID:       rec.SourceID,
		PositionID:     rec.PositionID,
		OrderRef:       rec.OrderRef,
		Symbol:         rec.Symbol,
		Kind:           rec.Kind,
		Disposition:    string(rec.Disposition),
		Reason:         rec.Reason,
		FillPrice:      rec.FillPrice,
		FilledQuantity: rec.FilledQuantity,
		RealizedPnl:    rec.RealizedPnL,
		ExecutedAt:     rec.Timestamp,
	}
	return s.insert(ctx, trade)
}

func (s *Store) insert(ctx context.Context, trade Trade) error {
	query := fmt.Sprintf(`INSERT INTO public.trades (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, tradeFields)
	args := []interface{}{
		trade.ID, trade.SourceID, trade.PositionID, trade.OrderRef,
		trade.Symbol, trade.Kind, trade.Disposition, trade.Reason,
		trade.FillPrice, trade.FilledQuantity, trade.RealizedPnl, trade.ExecutedAt,
	}

	if s.useCC {
		_, err := s.cached.ExecCtx(ctx, func(ctx context.Context, conn sqlx.SqlConn) (sql.Result, error) {
			return conn.ExecCtx(ctx, query, args...)
		}, TradesRecentKey(trade.Symbol), TradesRecentKey(""))
		if err != nil {
			return fmt.Errorf("store: insert trade %s: %w", trade.SourceID, err)
		}
		return nil
	}
	if _, err := s.conn.ExecCtx(ctx, query, args...); err != nil {
		return fmt.Errorf("store: insert trade %s: %w", trade.SourceID, err)
	}
	return nil
}

// Recent returns fills ordered by execution time descending. An empty symbol
// spans all instruments. Limit defaults to 200 when non-positive.
func (s *Store) Recent(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 200
	}

	key := TradesRecentKey(symbol)
	if s.useCC {
		var cached []Trade
		if err := s.cached.GetCacheCtx(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	var rows []Trade
	var err error
	if symbol == "" {
		query := fmt.Sprintf(`SELECT %s FROM public.trades ORDER BY executed_at DESC LIMIT $1`, tradeFields)
		err = s.queryRows(ctx, &rows, query, limit)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM public.trades WHERE symbol = $1 ORDER BY executed_at DESC LIMIT $2`, tradeFields)
		err = s.queryRows(ctx, &rows, query, symbol, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: recent trades: %w", err)
	}

	if s.useCC {
		_ = s.cached.SetCacheCtx(ctx, key, rows)
	}
	return rows, nil
}

// BySource returns the fill recorded for a source id, or sqlx.ErrNotFound.
func (s *Store) BySource(ctx context.Context, sourceID string) (*Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM public.trades WHERE source_id = $1 LIMIT 1`, tradeFields)

	var trade Trade
	if s.useCC {
		err := s.cached.QueryRowCtx(ctx, &trade, TradeBySourceKey(sourceID), func(ctx context.Context, conn sqlx.SqlConn, v interface{}) error {
			return conn.QueryRowCtx(ctx, v, query, sourceID)
		})
		if err != nil {
			return nil, err
		}
		return &trade, nil
	}
	if err := s.conn.QueryRowCtx(ctx, &trade, query, sourceID); err != nil {
		return nil, err
	}
	return &trade, nil
}

func (s *Store) queryRows(ctx context.Context, v interface{}, query string, args ...interface{}) error {
	if s.useCC {
		return s.cached.QueryRowsNoCacheCtx(ctx, v, query, args...)
	}
	return s.conn.QueryRowsCtx(ctx, v, query, args...)
}
