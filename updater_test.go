package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pendingLine(id int64, amount int64) *TicketLine {
	return &TicketLine{
		ID:         id,
		TicketID:   1,
		DrawID:     1,
		BetAmount:  decimal.NewFromInt(amount),
		LineStatus: LineStatusPending,
	}
}

func TestApplyOutcome(t *testing.T) {
	now := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)
	result := &Result{DrawID: 1, WinningNumber: "120399"}

	t.Run("loser", func(t *testing.T) {
		line := pendingLine(1, 10)
		ApplyOutcome(line, 0, nil, result, now)

		assert.Equal(t, LineStatusLoser, line.LineStatus)
		assert.False(t, line.IsWinner)
		assert.Zero(t, line.WinningPosition)
		assert.False(t, line.PrizeMultiplier.Valid)
		assert.True(t, line.PrizeAmount.IsZero())
		assert.Equal(t, "120399", line.ResultNumber)
		assert.Equal(t, now, *line.ResultCheckedAt)
	})

	t.Run("winner", func(t *testing.T) {
		line := pendingLine(2, 10)
		ApplyOutcome(line, 2, &Resolution{Multiplier: decimal.NewFromInt(12)}, result, now)

		assert.Equal(t, LineStatusWinner, line.LineStatus)
		assert.True(t, line.IsWinner)
		assert.Equal(t, 2, line.WinningPosition)
		assert.True(t, line.PrizeMultiplier.Valid)
		assert.True(t, decimal.NewFromInt(120).Equal(line.PrizeAmount))
		assert.NoError(t, line.Validate())
	})

	t.Run("winner without prize config", func(t *testing.T) {
		line := pendingLine(3, 10)
		ApplyOutcome(line, 1, nil, result, now)

		assert.Equal(t, LineStatusWinner, line.LineStatus)
		assert.False(t, line.PrizeMultiplier.Valid)
		assert.True(t, line.PrizeAmount.IsZero())
	})
}

func TestCachedResolution(t *testing.T) {
	line := pendingLine(1, 10)
	_, ok := cachedResolution(line)
	assert.False(t, ok)

	line.PrizeMultiplier = decimal.NewNullDecimal(decimal.NewFromInt(70))
	res, ok := cachedResolution(line)
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(70).Equal(res.Multiplier))
}

func TestRecomputeTicket(t *testing.T) {
	winner := func(id, prize int64) *TicketLine {
		return &TicketLine{ID: id, LineStatus: LineStatusWinner, IsWinner: true, WinningPosition: 1, PrizeAmount: decimal.NewFromInt(prize)}
	}
	loser := func(id int64) *TicketLine {
		return &TicketLine{ID: id, LineStatus: LineStatusLoser}
	}
	pending := func(id int64) *TicketLine {
		return &TicketLine{ID: id, LineStatus: LineStatusPending}
	}

	tests := []struct {
		name        string
		lines       []*TicketLine
		wantState   TicketState
		wantWinning int
		wantTotal   int64
	}{
		{"no lines", nil, TicketStatePending, 0, 0},
		{"all losers", []*TicketLine{loser(1), loser(2)}, TicketStateLoser, 0, 0},
		{"one winner", []*TicketLine{winner(1, 560), loser(2)}, TicketStateWinner, 1, 560},
		{"two winners", []*TicketLine{winner(1, 560), winner(2, 40)}, TicketStateWinner, 2, 600},
		{"pending dominates", []*TicketLine{winner(1, 560), pending(2)}, TicketStatePending, 1, 560},
		{"loser and pending", []*TicketLine{loser(1), pending(2)}, TicketStatePending, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := &Ticket{ID: 1, State: TicketStatePending}
			RecomputeTicket(ticket, tt.lines)

			assert.Equal(t, tt.wantState, ticket.State)
			assert.Equal(t, tt.wantWinning, ticket.WinningLines)
			assert.True(t, decimal.NewFromInt(tt.wantTotal).Equal(ticket.TotalPrize), "total %s", ticket.TotalPrize)
		})
	}
}

func TestOverlayLines(t *testing.T) {
	stored := []*TicketLine{pendingLine(1, 1), pendingLine(2, 1)}
	mutated := pendingLine(2, 1)
	mutated.LineStatus = LineStatusLoser

	out := overlayLines(stored, map[int64]*TicketLine{2: mutated})
	assert.Len(t, out, 2)
	assert.Same(t, stored[0], out[0])
	assert.Same(t, mutated, out[1])
}
