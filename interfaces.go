package settlement

import (
	"context"
	"time"
)

// ResultStore reads published draw results
type ResultStore interface {
	// GetByDrawAndDate returns the result of one draw on one day, or nil when none is published
	GetByDrawAndDate(ctx context.Context, drawID int64, date time.Time) (*Result, error)

	// GetAllForDate returns every result published for date, keyed by draw id
	GetAllForDate(ctx context.Context, date time.Time) (map[int64]*Result, error)

	// GetAllForRange returns every result between start and end inclusive
	GetAllForRange(ctx context.Context, start, end time.Time) (map[ResultKey]*Result, error)
}

// TicketLineStore reads and writes ticket lines. Reads exclude lines of cancelled tickets.
type TicketLineStore interface {
	// GetPending returns pending lines drawn on drawDate, optionally scoped to one draw
	GetPending(ctx context.Context, drawDate time.Time, drawID *int64) ([]*TicketLine, error)

	// GetPendingInRange returns pending lines drawn between start and end inclusive
	GetPendingInRange(ctx context.Context, start, end time.Time) ([]*TicketLine, error)

	// GetWinners returns winner lines drawn on drawDate
	GetWinners(ctx context.Context, drawDate time.Time) ([]*TicketLine, error)

	// SaveLines writes back the settlement columns of lines
	SaveLines(ctx context.Context, lines []*TicketLine) error
}

// TicketStore reads tickets with their full line set and writes aggregates
type TicketStore interface {
	GetTickets(ctx context.Context, ids []int64) (map[int64]*Ticket, error)
	GetTicketLines(ctx context.Context, ticketID int64) ([]*TicketLine, error)
	SaveTicketAggregates(ctx context.Context, tickets []*Ticket) error
}

// PrizeConfigStore reads prize configuration. Override lookups return nil when absent.
type PrizeConfigStore interface {
	GetPrizeTypes(ctx context.Context, prizeBetTypeID int64) ([]PrizeType, error)
	GetBancaPrizeConfig(ctx context.Context, bettingPoolID, prizeTypeID int64) (*BancaPrizeConfig, error)
	GetDrawPrizeConfig(ctx context.Context, drawID, bettingPoolID, prizeTypeID int64) (*DrawPrizeConfig, error)
}

// Store bundles every collaborator the engine reads from and writes to
type Store interface {
	ResultStore
	TicketLineStore
	TicketStore
	PrizeConfigStore
}

// TxManager runs fn in a transaction; returning an error rolls back everything fn wrote
type TxManager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// BatchLocker serialises batches touching the same (draw, day) keys
type BatchLocker interface {
	// Lock acquires every key or none. The returned func releases them.
	Lock(ctx context.Context, keys []string) (unlock func(context.Context) error, err error)
}

// ReportSink receives every finished batch report
type ReportSink interface {
	SaveReport(ctx context.Context, report *BatchReport) error
}

// Settler defines the exposed batch operations
type Settler interface {
	// ProcessForDate settles every pending line drawn on date
	ProcessForDate(ctx context.Context, date time.Time) (*BatchReport, error)

	// ProcessForDraw settles pending lines of one draw on date
	ProcessForDraw(ctx context.Context, drawID int64, date time.Time) (*BatchReport, error)

	// ReprocessRange settles pending lines drawn between start and end inclusive
	ReprocessRange(ctx context.Context, start, end time.Time) (*BatchReport, error)

	// RecalculatePrizes re-derives tiers and prizes of winner lines drawn on date
	RecalculatePrizes(ctx context.Context, date time.Time) (*BatchReport, error)
}
