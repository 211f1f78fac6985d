package settlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementEngine settles pending ticket lines against published results
type SettlementEngine struct {
	store    Store
	tx       TxManager
	locker   BatchLocker
	sink     ReportSink
	logger   Logger
	recovery *ErrorRecovery
	now      func() time.Time

	mu     sync.RWMutex // 保护 config 和 recovery
	config *SettlementConfig

	performanceMonitor *PerformanceMonitor
}

var _ Settler = (*SettlementEngine)(nil)

// Option configures a SettlementEngine
type Option func(*SettlementEngine)

// WithTxManager sets the transaction manager that scopes each batch
func WithTxManager(tx TxManager) Option {
	return func(e *SettlementEngine) { e.tx = tx }
}

// WithBatchLocker sets the concurrency guard; nil disables it
func WithBatchLocker(l BatchLocker) Option {
	return func(e *SettlementEngine) {
		if l == nil {
			e.locker = noopLocker{}
			return
		}
		e.locker = l
	}
}

// WithReportSink sets where finished reports are sent
func WithReportSink(s ReportSink) Option {
	return func(e *SettlementEngine) { e.sink = s }
}

// WithLogger sets the logger
func WithLogger(l Logger) Option {
	return func(e *SettlementEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSettlementConfig sets lock, retry and range limits
func WithSettlementConfig(cfg *SettlementConfig) Option {
	return func(e *SettlementEngine) {
		if cfg != nil {
			e.config = cfg
		}
	}
}

// WithPerformanceMonitor shares a monitor with other components
func WithPerformanceMonitor(m *PerformanceMonitor) Option {
	return func(e *SettlementEngine) {
		if m != nil {
			e.performanceMonitor = m
		}
	}
}

// WithClock overrides the time stamped on checked lines
func WithClock(now func() time.Time) Option {
	return func(e *SettlementEngine) {
		if now != nil {
			e.now = now
		}
	}
}

// directTx runs fn without a transaction, for stores that have none
type directTx struct{}

func (directTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// NewSettlementEngine creates an engine. When store also implements TxManager and no
// manager is given, the store scopes the batches itself.
func NewSettlementEngine(store Store, opts ...Option) (*SettlementEngine, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	e := &SettlementEngine{
		store:  store,
		locker: NewLocalBatchLocker(),
		logger: &DefaultLogger{},
		now:    time.Now,
		config: DefaultSettlementConfig(),

		performanceMonitor: NewPerformanceMonitor(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.tx == nil {
		if tx, ok := store.(TxManager); ok {
			e.tx = tx
		} else {
			e.logger.Warn("store has no transaction manager; a failed batch may leave partial writes")
			e.tx = directTx{}
		}
	}

	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	e.recovery = e.newRecovery(e.config)
	return e, nil
}

func (e *SettlementEngine) newRecovery(cfg *SettlementConfig) *ErrorRecovery {
	return NewErrorRecovery(NewDefaultErrorHandler(e.logger, cfg.RetryInterval), cfg.RetryAttempts, e.logger)
}

// GetConfig returns the current engine configuration
func (e *SettlementEngine) GetConfig() *SettlementConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.config
}

// configurableLocker is a BatchLocker whose lock settings follow engine config updates
type configurableLocker interface {
	UpdateConfig(cfg *SettlementConfig)
}

// UpdateConfig swaps the engine configuration at runtime. Lockers that implement
// UpdateConfig receive the new lock settings too.
func (e *SettlementEngine) UpdateConfig(cfg *SettlementConfig) error {
	if cfg == nil {
		return ErrInvalidParameters
	}
	if err := cfg.Validate(); err != nil {
		e.logger.Error("UpdateConfig validation failed: %v", err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.config = cfg
	e.recovery = e.newRecovery(cfg)
	if l, ok := e.locker.(configurableLocker); ok {
		l.UpdateConfig(cfg)
	}

	e.logger.Info("Configuration updated: RetryAttempts=%d, RetryInterval=%v, MaxRangeDays=%d",
		cfg.RetryAttempts, cfg.RetryInterval, cfg.MaxRangeDays)
	return nil
}

// GetPerformanceMetrics 获取性能指标
func (e *SettlementEngine) GetPerformanceMetrics() PerformanceMetrics {
	return e.performanceMonitor.GetMetrics()
}

func (e *SettlementEngine) snapshot() (*SettlementConfig, *ErrorRecovery) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.config, e.recovery
}

// ProcessForDate settles every pending line drawn on date
func (e *SettlementEngine) ProcessForDate(ctx context.Context, date time.Time) (*BatchReport, error) {
	e.logger.Debug("ProcessForDate called with date=%s", DayKey(date))

	report := newBatchReport(OpProcessForDate, date, date)
	return e.runPending(ctx, report, pendingScope{
		loadResults: func(ctx context.Context) (map[ResultKey]*Result, error) {
			byDraw, err := e.store.GetAllForDate(ctx, date)
			if err != nil {
				return nil, err
			}
			return keyByDraw(byDraw, date), nil
		},
		loadLines: func(ctx context.Context) ([]*TicketLine, error) {
			return e.store.GetPending(ctx, date, nil)
		},
	})
}

// ProcessForDraw settles pending lines of one draw on date. It returns an empty report
// when the draw has no published result yet.
func (e *SettlementEngine) ProcessForDraw(ctx context.Context, drawID int64, date time.Time) (*BatchReport, error) {
	e.logger.Debug("ProcessForDraw called with drawID=%d, date=%s", drawID, DayKey(date))

	if err := ValidateDrawID(drawID); err != nil {
		return nil, ErrInvalidParameters.WithCause(err)
	}

	report := newBatchReport(OpProcessForDraw, date, date)
	report.DrawID = &drawID
	return e.runPending(ctx, report, pendingScope{
		loadResults: func(ctx context.Context) (map[ResultKey]*Result, error) {
			r, err := e.store.GetByDrawAndDate(ctx, drawID, date)
			if err != nil || r == nil {
				return nil, err
			}
			return map[ResultKey]*Result{{DrawID: drawID, Day: DayKey(date)}: r}, nil
		},
		loadLines: func(ctx context.Context) ([]*TicketLine, error) {
			return e.store.GetPending(ctx, date, &drawID)
		},
	})
}

// ReprocessRange settles pending lines drawn between start and end inclusive
func (e *SettlementEngine) ReprocessRange(ctx context.Context, start, end time.Time) (*BatchReport, error) {
	e.logger.Debug("ReprocessRange called with start=%s, end=%s", DayKey(start), DayKey(end))

	cfg, _ := e.snapshot()
	if err := ValidateDateRange(start, end, cfg.MaxRangeDays); err != nil {
		return nil, ErrDateRange.WithCause(err)
	}

	report := newBatchReport(OpReprocessRange, start, end)
	return e.runPending(ctx, report, pendingScope{
		loadResults: func(ctx context.Context) (map[ResultKey]*Result, error) {
			return e.store.GetAllForRange(ctx, start, end)
		},
		loadLines: func(ctx context.Context) ([]*TicketLine, error) {
			return e.store.GetPendingInRange(ctx, start, end)
		},
	})
}

// RecalculatePrizes re-derives the tier and prize of every winner line drawn on date,
// ignoring cached multipliers. Without a stored result the tier is re-derived from the
// winning number saved on the line. When neither yields a tier the line keeps winning at
// tier 1 and the report carries a winningpositionfallback warning.
func (e *SettlementEngine) RecalculatePrizes(ctx context.Context, date time.Time) (*BatchReport, error) {
	e.logger.Debug("RecalculatePrizes called with date=%s", DayKey(date))

	report := newBatchReport(OpRecalculatePrizes, date, date)
	started := time.Now()
	_, recovery := e.snapshot()

	var (
		results map[ResultKey]*Result
		keys    map[ResultKey]struct{}
	)
	err := recovery.ExecuteWithRetry(ctx, func() error {
		byDraw, err := e.store.GetAllForDate(ctx, date)
		if err != nil {
			return e.storeError("load results", err)
		}
		results = keyByDraw(byDraw, date)

		// winners of a draw whose result row is gone are rewritten too, so their keys are locked
		winners, err := e.store.GetWinners(ctx, date)
		if err != nil {
			return e.storeError("load winner lines", err)
		}
		keys = resultKeys(results)
		for _, line := range winners {
			keys[line.Key()] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return e.fail(report, started, err)
	}

	err = e.withBatchLock(ctx, keys, func() error {
		return recovery.ExecuteWithRetry(ctx, func() error {
			report.reset()
			return e.tx.Do(ctx, func(ctx context.Context) error {
				return e.recalculate(ctx, report, date, results)
			})
		})
	})
	if err != nil {
		return e.fail(report, started, err)
	}
	return e.succeed(ctx, report, started), nil
}

// pendingScope selects the results and pending lines of one batch
type pendingScope struct {
	loadResults func(ctx context.Context) (map[ResultKey]*Result, error)
	loadLines   func(ctx context.Context) ([]*TicketLine, error)
}

func (e *SettlementEngine) runPending(ctx context.Context, report *BatchReport, scope pendingScope) (*BatchReport, error) {
	started := time.Now()
	_, recovery := e.snapshot()

	var results map[ResultKey]*Result
	err := recovery.ExecuteWithRetry(ctx, func() error {
		var err error
		results, err = scope.loadResults(ctx)
		if err != nil {
			return e.storeError("load results", err)
		}
		return nil
	})
	if err != nil {
		return e.fail(report, started, err)
	}

	if len(results) == 0 {
		e.logger.Info("%s: no published results for %s..%s, nothing to settle", report.Operation, report.Start, report.End)
		return e.succeed(ctx, report, started), nil
	}

	err = e.withBatchLock(ctx, resultKeys(results), func() error {
		return recovery.ExecuteWithRetry(ctx, func() error {
			report.reset()
			return e.tx.Do(ctx, func(ctx context.Context) error {
				return e.settlePending(ctx, report, results, scope.loadLines)
			})
		})
	})
	if err != nil {
		return e.fail(report, started, err)
	}
	return e.succeed(ctx, report, started), nil
}

func resultKeys(results map[ResultKey]*Result) map[ResultKey]struct{} {
	keys := make(map[ResultKey]struct{}, len(results))
	for k := range results {
		keys[k] = struct{}{}
	}
	return keys
}

// withBatchLock holds the (draw, day) locks of keys while fn runs
func (e *SettlementEngine) withBatchLock(ctx context.Context, keys map[ResultKey]struct{}, fn func() error) error {
	lockKeys := lockKeysFor(keys)

	unlock, err := e.locker.Lock(ctx, lockKeys)
	if err != nil {
		e.logger.Warn("batch lock on %d keys not acquired: %v", len(lockKeys), err)
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error("failed to release batch locks: %v", err)
		}
	}()

	return fn()
}

func (e *SettlementEngine) settlePending(
	ctx context.Context, report *BatchReport, results map[ResultKey]*Result,
	loadLines func(context.Context) ([]*TicketLine, error),
) error {
	lines, err := loadLines(ctx)
	if err != nil {
		return e.storeError("load pending lines", err)
	}
	tickets, err := e.loadTickets(ctx, lines)
	if err != nil {
		return err
	}

	resolver := NewPrizeResolver(e.store, e.logger)
	var mutated []*TicketLine

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return ErrBatchInterrupted.WithCause(err)
		}

		result := results[line.Key()]
		if result == nil {
			report.SkippedLines = append(report.SkippedLines, line.ID)
			continue
		}

		updated, err := e.settleLine(ctx, resolver, report, line, tickets[line.TicketID], result, false)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return err
			}
			e.logger.Error("line %d not settled: %v", line.ID, err)
			report.addFailure(line.ID, err)
			continue
		}

		mutated = append(mutated, updated)
		report.LinesProcessed++
		if updated.IsWinner {
			report.WinnersFound++
			report.TotalPrize = report.TotalPrize.Add(updated.PrizeAmount)
		}
	}

	return e.persist(ctx, report, mutated, tickets)
}

func (e *SettlementEngine) recalculate(ctx context.Context, report *BatchReport, date time.Time, results map[ResultKey]*Result) error {
	lines, err := e.store.GetWinners(ctx, date)
	if err != nil {
		return e.storeError("load winner lines", err)
	}
	tickets, err := e.loadTickets(ctx, lines)
	if err != nil {
		return err
	}

	resolver := NewPrizeResolver(e.store, e.logger)
	var mutated []*TicketLine

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return ErrBatchInterrupted.WithCause(err)
		}

		previous := line.PrizeAmount
		result := results[line.Key()]
		if result == nil && line.ResultNumber != "" {
			// result row gone: re-derive from the winning number saved when the line was checked
			result = &Result{DrawID: line.DrawID, ResultDate: line.DrawDate, WinningNumber: line.ResultNumber}
		}
		updated, err := e.settleLine(ctx, resolver, report, line, tickets[line.TicketID], result, true)
		if err != nil {
			if errors.Is(err, ErrStoreUnavailable) {
				return err
			}
			e.logger.Error("line %d not recalculated: %v", line.ID, err)
			report.addFailure(line.ID, err)
			continue
		}

		mutated = append(mutated, updated)
		report.LinesProcessed++
		report.WinnersFound++
		report.TotalPrize = report.TotalPrize.Add(updated.PrizeAmount)
		report.PrizeDelta = report.PrizeDelta.Add(updated.PrizeAmount.Sub(previous))
	}

	return e.persist(ctx, report, mutated, tickets)
}

// settleLine matches one line and resolves its prize on a copy. Panics and shape errors
// come back as per-line errors; store failures come back as ErrStoreUnavailable.
func (e *SettlementEngine) settleLine(
	ctx context.Context, resolver *PrizeResolver, report *BatchReport,
	line *TicketLine, ticket *Ticket, result *Result, recalc bool,
) (out *TicketLine, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: panic settling line %d: %v", ErrMalformedLine, line.ID, r)
		}
	}()

	if err := line.Validate(); err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, fmt.Errorf("%w: ticket %d of line %d", ErrTicketNotFound, line.TicketID, line.ID)
	}
	if !recalc && line.LineStatus != LineStatusPending {
		return nil, ErrLineNotPending
	}

	updated := line.Clone()
	if recalc {
		updated.PrizeMultiplier = decimal.NullDecimal{}
	}

	tier := Match(ParseBetType(line.BetTypeCode), line.BetNumber, DecodeResult(result))
	if recalc && tier == 0 {
		tier = 1
		report.addWarning(line.ID, WarnWinningPositionFallback,
			fmt.Sprintf("tier of line %d could not be re-derived from the stored result, assuming 1", line.ID))
	}

	var res *Resolution
	if tier > 0 {
		res, err = e.resolvePrize(ctx, resolver, report, updated, ticket, tier)
		if err != nil {
			return nil, err
		}
	}

	ApplyOutcome(updated, tier, res, result, e.now())
	return updated, nil
}

// resolvePrize returns nil, nil when the prize cannot be resolved and the line degrades to 0
func (e *SettlementEngine) resolvePrize(
	ctx context.Context, resolver *PrizeResolver, report *BatchReport,
	line *TicketLine, ticket *Ticket, tier int,
) (*Resolution, error) {
	if cached, ok := cachedResolution(line); ok {
		return cached, nil
	}

	res, err := resolver.Resolve(ctx, Selector{
		BetTypeID:     line.BetTypeID,
		Tier:          tier,
		BettingPoolID: ticket.BettingPoolID,
		DrawID:        line.DrawID,
	})
	switch {
	case errors.Is(err, ErrUnresolvablePrizeConfig):
		e.logger.Warn("line %d wins tier %d but pays 0: %v", line.ID, tier, err)
		report.addWarning(line.ID, WarnUnresolvablePrizeConfig, err.Error())
		return nil, nil
	case err != nil:
		return nil, e.storeError("resolve prize", err)
	}

	if res.Degraded {
		report.addWarning(line.ID, WarnDegradedPrizeTier,
			fmt.Sprintf("no prize type for tier %d, paid at display order %d", tier, res.DisplayOrder))
	}
	return &res, nil
}

// loadTickets reads the owning tickets of lines
func (e *SettlementEngine) loadTickets(ctx context.Context, lines []*TicketLine) (map[int64]*Ticket, error) {
	if len(lines) == 0 {
		return map[int64]*Ticket{}, nil
	}
	tickets, err := e.store.GetTickets(ctx, ticketIDs(lines))
	if err != nil {
		return nil, e.storeError("load tickets", err)
	}
	return tickets, nil
}

// persist writes mutated lines, then recomputes every touched ticket from its full line set
func (e *SettlementEngine) persist(ctx context.Context, report *BatchReport, mutated []*TicketLine, tickets map[int64]*Ticket) error {
	if len(mutated) == 0 {
		return nil
	}

	if err := e.store.SaveLines(ctx, mutated); err != nil {
		return e.storeError("save lines", err)
	}

	byID := make(map[int64]*TicketLine, len(mutated))
	for _, l := range mutated {
		byID[l.ID] = l
	}

	ids := ticketIDs(mutated)
	updated := make([]*Ticket, 0, len(ids))
	for _, id := range ids {
		ticket := tickets[id]
		stored, err := e.store.GetTicketLines(ctx, id)
		if err != nil {
			return e.storeError("load ticket lines", err)
		}
		RecomputeTicket(ticket, overlayLines(stored, byID))
		updated = append(updated, ticket)
	}

	if err := e.store.SaveTicketAggregates(ctx, updated); err != nil {
		return e.storeError("save ticket aggregates", err)
	}
	report.TicketsUpdated = len(updated)
	return nil
}

func (e *SettlementEngine) storeError(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrBatchInterrupted) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrBatchInterrupted.WithCause(err).WithOperation(op)
	}
	e.performanceMonitor.RecordStoreError()
	return ErrStoreUnavailable.WithCause(err).WithOperation(op)
}

func (e *SettlementEngine) succeed(ctx context.Context, report *BatchReport, started time.Time) *BatchReport {
	report.finish()
	e.performanceMonitor.RecordBatch(report, time.Since(started))

	e.logger.Info("%s %s (%s..%s): processed=%d winners=%d tickets=%d prize=%s failed=%d warnings=%d skipped=%d in %v",
		report.Operation, report.RunID, report.Start, report.End,
		report.LinesProcessed, report.WinnersFound, report.TicketsUpdated, report.TotalPrize.StringFixed(2),
		len(report.FailedLines), len(report.Warnings), len(report.SkippedLines), report.Duration)

	if e.sink != nil {
		if err := e.sink.SaveReport(context.WithoutCancel(ctx), report); err != nil {
			e.logger.Error("failed to publish report %s: %v", report.RunID, err)
		}
	}
	return report
}

func (e *SettlementEngine) fail(report *BatchReport, started time.Time, err error) (*BatchReport, error) {
	e.performanceMonitor.RecordBatch(nil, time.Since(started))
	e.logger.Error("%s %s (%s..%s) rolled back: %v", report.Operation, report.RunID, report.Start, report.End, err)
	return nil, err
}

func keyByDraw(byDraw map[int64]*Result, date time.Time) map[ResultKey]*Result {
	day := DayKey(date)
	out := make(map[ResultKey]*Result, len(byDraw))
	for drawID, r := range byDraw {
		if r != nil {
			out[ResultKey{DrawID: drawID, Day: day}] = r
		}
	}
	return out
}

// ticketIDs returns the sorted distinct ticket ids of lines
func ticketIDs(lines []*TicketLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.TicketID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
