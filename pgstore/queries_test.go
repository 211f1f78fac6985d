package pgstore

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kydenul/settlement"
)

var day = time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

func TestResultQueries(t *testing.T) {
	sqlStr, args, err := resultByDrawAndDateQuery(7, day).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT draw_id, result_date, winning_number, additional_number FROM results "+
			"WHERE draw_id = $1 AND result_date = $2::date LIMIT 1",
		sqlStr)
	assert.Equal(t, []any{int64(7), "2024-03-15"}, args)

	sqlStr, args, err = resultsForRangeQuery(day, day.AddDate(0, 0, 3)).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "WHERE result_date BETWEEN $1::date AND $2::date")
	assert.Equal(t, []any{"2024-03-15", "2024-03-18"}, args)
}

func TestPendingLinesQuery(t *testing.T) {
	tests := []struct {
		name     string
		drawID   *int64
		wantTail string
		wantArgs int
	}{
		{
			name:     "whole day",
			wantTail: "WHERE t.is_cancelled = $1 AND l.line_status = $2 AND l.draw_date = $3::date ORDER BY l.id",
			wantArgs: 3,
		},
		{
			name:     "single draw",
			drawID:   func() *int64 { id := int64(12); return &id }(),
			wantTail: "AND l.draw_date = $3::date AND l.draw_id = $4 ORDER BY l.id",
			wantArgs: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sqlStr, args, err := pendingLinesQuery(day, tt.drawID).ToSql()
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(sqlStr, "SELECT l.id, l.ticket_id"))
			assert.Contains(t, sqlStr, "FROM ticket_lines l JOIN tickets t ON t.id = l.ticket_id")
			assert.True(t, strings.HasSuffix(sqlStr, tt.wantTail), sqlStr)
			require.Len(t, args, tt.wantArgs)
			assert.Equal(t, false, args[0])
			assert.Equal(t, "pending", args[1])
		})
	}
}

func TestWinnerLinesQuery(t *testing.T) {
	sqlStr, args, err := winnerLinesQuery(day).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "l.line_status = $2")
	assert.Equal(t, []any{false, "winner", "2024-03-15"}, args)
}

func TestTicketLinesQuery_IncludesCancelledTickets(t *testing.T) {
	sqlStr, args, err := ticketLinesQuery(3).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, sqlStr, "is_cancelled")
	assert.Equal(t, []any{int64(3)}, args)
}

func TestSaveLineQuery(t *testing.T) {
	checked := day
	line := &settlement.TicketLine{
		ID:              41,
		LineStatus:      settlement.LineStatusWinner,
		IsWinner:        true,
		WinningPosition: 2,
		ResultNumber:    "120399",
		ResultCheckedAt: &checked,
		PrizeMultiplier: decimal.NewNullDecimal(decimal.NewFromInt(60)),
		PrizeAmount:     decimal.NewFromInt(600),
	}

	sqlStr, args, err := saveLineQuery(line).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE ticket_lines SET line_status = $1, is_winner = $2, winning_position = $3, result_number = $4, "+
			"result_checked_at = $5, prize_multiplier = $6, prize_amount = $7 WHERE id = $8",
		sqlStr)
	require.Len(t, args, 8)
	assert.Equal(t, "winner", args[0])
	assert.Equal(t, 2, args[2])
	assert.Equal(t, int64(41), args[7])
}

func TestTicketQueries(t *testing.T) {
	sqlStr, args, err := ticketsQuery([]int64{1, 2}).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, COALESCE(betting_pool_id, 0), is_cancelled, ticket_state, winning_lines, total_prize "+
			"FROM tickets WHERE id IN ($1,$2)",
		sqlStr)
	assert.Equal(t, []any{int64(1), int64(2)}, args)

	ticket := &settlement.Ticket{ID: 9, State: settlement.TicketStateWinner, WinningLines: 1, TotalPrize: decimal.NewFromInt(600)}
	sqlStr, args, err = saveTicketQuery(ticket).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE tickets SET ticket_state = $1, winning_lines = $2, total_prize = $3 WHERE id = $4", sqlStr)
	assert.Equal(t, "W", args[0])
	assert.Equal(t, int64(9), args[3])
}

func TestPrizeConfigQueries(t *testing.T) {
	sqlStr, args, err := prizeTypesQuery(4).ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT id, bet_type_id, display_order, default_multiplier, is_active FROM prize_types "+
			"WHERE bet_type_id = $1 ORDER BY display_order",
		sqlStr)
	assert.Equal(t, []any{int64(4)}, args)

	sqlStr, args, err = bancaConfigQuery(5, 11).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "WHERE betting_pool_id = $1 AND prize_type_id = $2 LIMIT 1")
	assert.Equal(t, []any{int64(5), int64(11)}, args)

	sqlStr, args, err = drawConfigQuery(3, 5, 11).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "WHERE betting_pool_id = $1 AND draw_id = $2 AND prize_type_id = $3 LIMIT 1")
	assert.Equal(t, []any{int64(5), int64(3), int64(11)}, args)
}
