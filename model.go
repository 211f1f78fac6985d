package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LineStatus is the settlement status of a ticket line
type LineStatus string

const (
	LineStatusPending LineStatus = "pending"
	LineStatusWinner  LineStatus = "winner"
	LineStatusLoser   LineStatus = "loser"
)

// IsTerminal reports whether the line has been settled
func (s LineStatus) IsTerminal() bool {
	return s == LineStatusWinner || s == LineStatusLoser
}

// TicketState is the aggregate state of a ticket
type TicketState string

const (
	TicketStatePending TicketState = "P"
	TicketStateWinner  TicketState = "W"
	TicketStateLoser   TicketState = "L"
)

// Result is a published draw result
type Result struct {
	DrawID           int64     `json:"draw_id"`
	ResultDate       time.Time `json:"result_date"`
	WinningNumber    string    `json:"winning_number"`              // num1 num2 num3, 2 digits each
	AdditionalNumber *string   `json:"additional_number,omitempty"` // cash3(3) + play4(4) + pick5(5)
}

// Key returns the composite (draw, day) key of the result
func (r *Result) Key() ResultKey {
	return ResultKey{DrawID: r.DrawID, Day: DayKey(r.ResultDate)}
}

// TicketLine is one bet on a ticket
type TicketLine struct {
	ID              int64               `json:"id"`
	TicketID        int64               `json:"ticket_id"`
	DrawID          int64               `json:"draw_id"`
	DrawDate        time.Time           `json:"draw_date"`
	BetTypeID       int64               `json:"bet_type_id"` // game classification, not the prize-config id
	BetTypeCode     string              `json:"bet_type_code"`
	BetNumber       string              `json:"bet_number"`
	BetAmount       decimal.Decimal     `json:"bet_amount"`
	LineStatus      LineStatus          `json:"line_status"`
	IsWinner        bool                `json:"is_winner"`
	WinningPosition int                 `json:"winning_position"`
	ResultNumber    string              `json:"result_number,omitempty"`
	ResultCheckedAt *time.Time          `json:"result_checked_at,omitempty"`
	PrizeMultiplier decimal.NullDecimal `json:"prize_multiplier"`
	PrizeAmount     decimal.Decimal     `json:"prize_amount"`
}

// Key returns the result key this line settles against
func (l *TicketLine) Key() ResultKey {
	return ResultKey{DrawID: l.DrawID, Day: DayKey(l.DrawDate)}
}

// Validate checks the shape of the line and that tier agrees with status
func (l *TicketLine) Validate() error {
	switch {
	case l.ID <= 0:
		return fmt.Errorf("%w: missing line id", ErrMalformedLine)
	case l.TicketID <= 0:
		return fmt.Errorf("%w: line %d has no ticket", ErrMalformedLine, l.ID)
	case l.DrawID <= 0:
		return fmt.Errorf("%w: line %d has no draw", ErrMalformedLine, l.ID)
	case l.BetAmount.IsNegative():
		return fmt.Errorf("%w: line %d has negative bet amount %s", ErrMalformedLine, l.ID, l.BetAmount)
	}

	switch l.LineStatus {
	case LineStatusPending:
	case LineStatusWinner:
		if l.WinningPosition <= 0 || !l.IsWinner {
			return fmt.Errorf("%w: winner line %d has tier %d", ErrMalformedLine, l.ID, l.WinningPosition)
		}
	case LineStatusLoser:
		if l.WinningPosition != 0 || l.IsWinner {
			return fmt.Errorf("%w: loser line %d has tier %d", ErrMalformedLine, l.ID, l.WinningPosition)
		}
	default:
		return fmt.Errorf("%w: line %d has unknown status %q", ErrMalformedLine, l.ID, l.LineStatus)
	}
	return nil
}

// Clone returns a copy that can be mutated without touching the original
func (l *TicketLine) Clone() *TicketLine {
	c := *l
	if l.ResultCheckedAt != nil {
		t := *l.ResultCheckedAt
		c.ResultCheckedAt = &t
	}
	return &c
}

// Ticket is the aggregate that owns ticket lines
type Ticket struct {
	ID            int64           `json:"id"`
	BettingPoolID int64           `json:"betting_pool_id"` // 0 means no pool
	IsCancelled   bool            `json:"is_cancelled"`
	State         TicketState     `json:"ticket_state"`
	WinningLines  int             `json:"winning_lines"`
	TotalPrize    decimal.Decimal `json:"total_prize"`
}

// PrizeType is the default payout configuration of one tier of a bet type
type PrizeType struct {
	ID                int64           `json:"prize_type_id"`
	BetTypeID         int64           `json:"bet_type_id"` // prize-config numbering
	DisplayOrder      int             `json:"display_order"`
	DefaultMultiplier decimal.Decimal `json:"default_multiplier"`
	IsActive          bool            `json:"is_active"`
}

// BancaPrizeConfig is a pool-wide multiplier override
type BancaPrizeConfig struct {
	BettingPoolID int64           `json:"betting_pool_id"`
	PrizeTypeID   int64           `json:"prize_type_id"`
	CustomValue   decimal.Decimal `json:"custom_value"`
}

// DrawPrizeConfig is a draw-and-pool specific multiplier override
type DrawPrizeConfig struct {
	DrawID        int64           `json:"draw_id"`
	BettingPoolID int64           `json:"betting_pool_id"`
	PrizeTypeID   int64           `json:"prize_type_id"`
	CustomValue   decimal.Decimal `json:"custom_value"`
}

// ResultKey identifies a result by draw and calendar day
type ResultKey struct {
	DrawID int64
	Day    string
}

// String returns the key as used in lock names
func (k ResultKey) String() string {
	return fmt.Sprintf("%d:%s", k.DrawID, k.Day)
}
