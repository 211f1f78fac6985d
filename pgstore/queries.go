package pgstore

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/kydenul/settlement"
)

const (
	resultsTable     = "results"
	linesTable       = "ticket_lines"
	ticketsTable     = "tickets"
	prizeTypesTable  = "prize_types"
	bancaConfigTable = "banca_prize_configs"
	drawConfigTable  = "draw_prize_configs"
)

var resultColumns = []string{"draw_id", "result_date", "winning_number", "additional_number"}

var lineColumns = []string{
	"l.id", "l.ticket_id", "l.draw_id", "l.draw_date", "l.bet_type_id", "l.bet_type_code",
	"l.bet_number", "l.bet_amount", "l.line_status", "l.is_winner", "l.winning_position",
	"COALESCE(l.result_number, '')", "l.result_checked_at", "l.prize_multiplier", "l.prize_amount",
}

var ticketColumns = []string{
	"id", "COALESCE(betting_pool_id, 0)", "is_cancelled", "ticket_state", "winning_lines", "total_prize",
}

func psql() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func onDay(column string, day time.Time) sq.Sqlizer {
	return sq.Expr(column+" = ?::date", settlement.DayKey(day))
}

func betweenDays(column string, start, end time.Time) sq.Sqlizer {
	return sq.Expr(column+" BETWEEN ?::date AND ?::date", settlement.DayKey(start), settlement.DayKey(end))
}

func resultByDrawAndDateQuery(drawID int64, date time.Time) sq.SelectBuilder {
	return psql().Select(resultColumns...).
		From(resultsTable).
		Where(sq.Eq{"draw_id": drawID}).
		Where(onDay("result_date", date)).
		Limit(1)
}

func resultsForDateQuery(date time.Time) sq.SelectBuilder {
	return psql().Select(resultColumns...).
		From(resultsTable).
		Where(onDay("result_date", date))
}

func resultsForRangeQuery(start, end time.Time) sq.SelectBuilder {
	return psql().Select(resultColumns...).
		From(resultsTable).
		Where(betweenDays("result_date", start, end))
}

// liveLines selects lines whose ticket is not cancelled
func liveLines() sq.SelectBuilder {
	return psql().Select(lineColumns...).
		From(linesTable + " l").
		Join(ticketsTable + " t ON t.id = l.ticket_id").
		Where(sq.Eq{"t.is_cancelled": false}).
		OrderBy("l.id")
}

func pendingLinesQuery(drawDate time.Time, drawID *int64) sq.SelectBuilder {
	q := liveLines().
		Where(sq.Eq{"l.line_status": string(settlement.LineStatusPending)}).
		Where(onDay("l.draw_date", drawDate))
	if drawID != nil {
		q = q.Where(sq.Eq{"l.draw_id": *drawID})
	}
	return q
}

func pendingLinesInRangeQuery(start, end time.Time) sq.SelectBuilder {
	return liveLines().
		Where(sq.Eq{"l.line_status": string(settlement.LineStatusPending)}).
		Where(betweenDays("l.draw_date", start, end))
}

func winnerLinesQuery(drawDate time.Time) sq.SelectBuilder {
	return liveLines().
		Where(sq.Eq{"l.line_status": string(settlement.LineStatusWinner)}).
		Where(onDay("l.draw_date", drawDate))
}

func ticketLinesQuery(ticketID int64) sq.SelectBuilder {
	return psql().Select(lineColumns...).
		From(linesTable + " l").
		Where(sq.Eq{"l.ticket_id": ticketID}).
		OrderBy("l.id")
}

func saveLineQuery(l *settlement.TicketLine) sq.UpdateBuilder {
	return psql().Update(linesTable).
		Set("line_status", string(l.LineStatus)).
		Set("is_winner", l.IsWinner).
		Set("winning_position", l.WinningPosition).
		Set("result_number", l.ResultNumber).
		Set("result_checked_at", l.ResultCheckedAt).
		Set("prize_multiplier", l.PrizeMultiplier).
		Set("prize_amount", l.PrizeAmount).
		Where(sq.Eq{"id": l.ID})
}

func ticketsQuery(ids []int64) sq.SelectBuilder {
	return psql().Select(ticketColumns...).
		From(ticketsTable).
		Where(sq.Eq{"id": ids})
}

func saveTicketQuery(t *settlement.Ticket) sq.UpdateBuilder {
	return psql().Update(ticketsTable).
		Set("ticket_state", string(t.State)).
		Set("winning_lines", t.WinningLines).
		Set("total_prize", t.TotalPrize).
		Where(sq.Eq{"id": t.ID})
}

func prizeTypesQuery(prizeBetTypeID int64) sq.SelectBuilder {
	return psql().Select("id", "bet_type_id", "display_order", "default_multiplier", "is_active").
		From(prizeTypesTable).
		Where(sq.Eq{"bet_type_id": prizeBetTypeID}).
		OrderBy("display_order")
}

func bancaConfigQuery(bettingPoolID, prizeTypeID int64) sq.SelectBuilder {
	return psql().Select("betting_pool_id", "prize_type_id", "custom_value").
		From(bancaConfigTable).
		Where(sq.Eq{"betting_pool_id": bettingPoolID, "prize_type_id": prizeTypeID}).
		Limit(1)
}

func drawConfigQuery(drawID, bettingPoolID, prizeTypeID int64) sq.SelectBuilder {
	return psql().Select("draw_id", "betting_pool_id", "prize_type_id", "custom_value").
		From(drawConfigTable).
		Where(sq.Eq{"draw_id": drawID, "betting_pool_id": bettingPoolID, "prize_type_id": prizeTypeID}).
		Limit(1)
}
