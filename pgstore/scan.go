package pgstore

import (
	"github.com/jackc/pgx/v5"

	"github.com/kydenul/settlement"
)

func scanResult(row pgx.Row) (*settlement.Result, error) {
	var r settlement.Result
	if err := row.Scan(&r.DrawID, &r.ResultDate, &r.WinningNumber, &r.AdditionalNumber); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectResults(rows pgx.Rows) ([]*settlement.Result, error) {
	defer rows.Close()

	var out []*settlement.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanLine(row pgx.Row) (*settlement.TicketLine, error) {
	var (
		l      settlement.TicketLine
		status string
	)
	err := row.Scan(
		&l.ID, &l.TicketID, &l.DrawID, &l.DrawDate, &l.BetTypeID, &l.BetTypeCode,
		&l.BetNumber, &l.BetAmount, &status, &l.IsWinner, &l.WinningPosition,
		&l.ResultNumber, &l.ResultCheckedAt, &l.PrizeMultiplier, &l.PrizeAmount,
	)
	if err != nil {
		return nil, err
	}
	l.LineStatus = settlement.LineStatus(status)
	return &l, nil
}

func collectLines(rows pgx.Rows) ([]*settlement.TicketLine, error) {
	defer rows.Close()

	var out []*settlement.TicketLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanTicket(row pgx.Row) (*settlement.Ticket, error) {
	var (
		t     settlement.Ticket
		state string
	)
	if err := row.Scan(&t.ID, &t.BettingPoolID, &t.IsCancelled, &state, &t.WinningLines, &t.TotalPrize); err != nil {
		return nil, err
	}
	t.State = settlement.TicketState(state)
	return &t, nil
}
