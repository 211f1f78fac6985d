// Package pgstore implements the settlement collaborator contracts on PostgreSQL.
// Every query joins the transaction opened by the trm manager, when there is one.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kydenul/settlement"
)

// Store reads and writes settlement data through a pgx pool
type Store struct {
	pool   *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

var _ settlement.Store = (*Store)(nil)

// New creates a store on pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		getter: trmpgx.DefaultCtxGetter,
	}
}

// Connect opens a pool from cfg
func Connect(ctx context.Context, cfg *settlement.PostgresConfig) (*pgxpool.Pool, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, settlement.ErrConfigInvalid.WithDetails("postgres dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, settlement.ErrConfigInvalid.WithCause(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, settlement.ErrStoreUnavailable.WithCause(err).WithOperation("connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, settlement.ErrStoreUnavailable.WithCause(err).WithOperation("ping")
	}
	return pool, nil
}

// NewTxManager returns a transaction manager whose transactions this store joins
func NewTxManager(pool *pgxpool.Pool) (*manager.Manager, error) {
	return manager.New(trmpgx.NewDefaultFactory(pool))
}

func (s *Store) tr(ctx context.Context) trmpgx.Tr {
	return s.getter.DefaultTrOrDB(ctx, s.pool)
}

func (s *Store) query(ctx context.Context, q sq.Sqlizer) (pgx.Rows, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return s.tr(ctx).Query(ctx, sqlStr, args...)
}

func (s *Store) queryRow(ctx context.Context, q sq.Sqlizer) (pgx.Row, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return s.tr(ctx).QueryRow(ctx, sqlStr, args...), nil
}

// execBatch sends one statement per builder in a single round trip
func (s *Store) execBatch(ctx context.Context, qs []sq.Sqlizer) error {
	if len(qs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, q := range qs {
		sqlStr, args, err := q.ToSql()
		if err != nil {
			return err
		}
		batch.Queue(sqlStr, args...)
	}
	return s.tr(ctx).SendBatch(ctx, batch).Close()
}

func (s *Store) GetByDrawAndDate(ctx context.Context, drawID int64, date time.Time) (*settlement.Result, error) {
	row, err := s.queryRow(ctx, resultByDrawAndDateQuery(drawID, date))
	if err != nil {
		return nil, err
	}
	r, err := scanResult(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("result of draw %d on %s: %w", drawID, settlement.DayKey(date), err)
	}
	return r, nil
}

func (s *Store) GetAllForDate(ctx context.Context, date time.Time) (map[int64]*settlement.Result, error) {
	rows, err := s.query(ctx, resultsForDateQuery(date))
	if err != nil {
		return nil, err
	}
	results, err := collectResults(rows)
	if err != nil {
		return nil, fmt.Errorf("results on %s: %w", settlement.DayKey(date), err)
	}

	out := make(map[int64]*settlement.Result, len(results))
	for _, r := range results {
		out[r.DrawID] = r
	}
	return out, nil
}

func (s *Store) GetAllForRange(ctx context.Context, start, end time.Time) (map[settlement.ResultKey]*settlement.Result, error) {
	rows, err := s.query(ctx, resultsForRangeQuery(start, end))
	if err != nil {
		return nil, err
	}
	results, err := collectResults(rows)
	if err != nil {
		return nil, fmt.Errorf("results %s..%s: %w", settlement.DayKey(start), settlement.DayKey(end), err)
	}

	out := make(map[settlement.ResultKey]*settlement.Result, len(results))
	for _, r := range results {
		out[r.Key()] = r
	}
	return out, nil
}

func (s *Store) lines(ctx context.Context, q sq.Sqlizer) ([]*settlement.TicketLine, error) {
	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, err
	}
	return collectLines(rows)
}

func (s *Store) GetPending(ctx context.Context, drawDate time.Time, drawID *int64) ([]*settlement.TicketLine, error) {
	return s.lines(ctx, pendingLinesQuery(drawDate, drawID))
}

func (s *Store) GetPendingInRange(ctx context.Context, start, end time.Time) ([]*settlement.TicketLine, error) {
	return s.lines(ctx, pendingLinesInRangeQuery(start, end))
}

func (s *Store) GetWinners(ctx context.Context, drawDate time.Time) ([]*settlement.TicketLine, error) {
	return s.lines(ctx, winnerLinesQuery(drawDate))
}

func (s *Store) GetTicketLines(ctx context.Context, ticketID int64) ([]*settlement.TicketLine, error) {
	return s.lines(ctx, ticketLinesQuery(ticketID))
}

func (s *Store) SaveLines(ctx context.Context, lines []*settlement.TicketLine) error {
	qs := make([]sq.Sqlizer, 0, len(lines))
	for _, l := range lines {
		qs = append(qs, saveLineQuery(l))
	}
	return s.execBatch(ctx, qs)
}

func (s *Store) GetTickets(ctx context.Context, ids []int64) (map[int64]*settlement.Ticket, error) {
	out := make(map[int64]*settlement.Ticket, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.query(ctx, ticketsQuery(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out[t.ID] = t
	}
	return out, rows.Err()
}

func (s *Store) SaveTicketAggregates(ctx context.Context, tickets []*settlement.Ticket) error {
	qs := make([]sq.Sqlizer, 0, len(tickets))
	for _, t := range tickets {
		qs = append(qs, saveTicketQuery(t))
	}
	return s.execBatch(ctx, qs)
}

func (s *Store) GetPrizeTypes(ctx context.Context, prizeBetTypeID int64) ([]settlement.PrizeType, error) {
	rows, err := s.query(ctx, prizeTypesQuery(prizeBetTypeID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.PrizeType
	for rows.Next() {
		var pt settlement.PrizeType
		if err := rows.Scan(&pt.ID, &pt.BetTypeID, &pt.DisplayOrder, &pt.DefaultMultiplier, &pt.IsActive); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *Store) GetBancaPrizeConfig(ctx context.Context, bettingPoolID, prizeTypeID int64) (*settlement.BancaPrizeConfig, error) {
	row, err := s.queryRow(ctx, bancaConfigQuery(bettingPoolID, prizeTypeID))
	if err != nil {
		return nil, err
	}

	var c settlement.BancaPrizeConfig
	err = row.Scan(&c.BettingPoolID, &c.PrizeTypeID, &c.CustomValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetDrawPrizeConfig(ctx context.Context, drawID, bettingPoolID, prizeTypeID int64) (*settlement.DrawPrizeConfig, error) {
	row, err := s.queryRow(ctx, drawConfigQuery(drawID, bettingPoolID, prizeTypeID))
	if err != nil {
		return nil, err
	}

	var c settlement.DrawPrizeConfig
	err = row.Scan(&c.DrawID, &c.BettingPoolID, &c.PrizeTypeID, &c.CustomValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
