package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplyOutcome writes the outcome of matching line against result. A nil resolution on a
// winning tier means the prize could not be resolved: the line still wins, paying 0, and
// its multiplier stays unset so a later recalculation can resolve it.
func ApplyOutcome(line *TicketLine, tier int, res *Resolution, result *Result, now time.Time) {
	checkedAt := now
	line.ResultCheckedAt = &checkedAt
	if result != nil {
		line.ResultNumber = result.WinningNumber
	}

	if tier <= 0 {
		line.LineStatus = LineStatusLoser
		line.IsWinner = false
		line.WinningPosition = 0
		line.PrizeMultiplier = decimal.NullDecimal{}
		line.PrizeAmount = decimal.Zero
		return
	}

	line.LineStatus = LineStatusWinner
	line.IsWinner = true
	line.WinningPosition = tier

	if res == nil {
		line.PrizeMultiplier = decimal.NullDecimal{}
		line.PrizeAmount = decimal.Zero
		return
	}
	line.PrizeMultiplier = decimal.NewNullDecimal(res.Multiplier)
	line.PrizeAmount = PrizeAmount(line.BetAmount, res.Multiplier)
}

// cachedResolution returns the multiplier already cached on the line, if any
func cachedResolution(line *TicketLine) (*Resolution, bool) {
	if !line.PrizeMultiplier.Valid {
		return nil, false
	}
	return &Resolution{Multiplier: line.PrizeMultiplier.Decimal}, true
}

// RecomputeTicket derives the aggregate state of ticket from its full line set.
// P while any line is pending, then W if any line won, else L.
func RecomputeTicket(ticket *Ticket, lines []*TicketLine) {
	winning := 0
	total := decimal.Zero
	settled := true

	for _, l := range lines {
		if l.IsWinner {
			winning++
			total = total.Add(l.PrizeAmount)
		}
		if !l.LineStatus.IsTerminal() {
			settled = false
		}
	}

	switch {
	case !settled || len(lines) == 0:
		ticket.State = TicketStatePending
	case winning > 0:
		ticket.State = TicketStateWinner
	default:
		ticket.State = TicketStateLoser
	}
	ticket.WinningLines = winning
	ticket.TotalPrize = total
}

// overlayLines replaces entries of stored with their mutated copies, matched by line id
func overlayLines(stored []*TicketLine, mutated map[int64]*TicketLine) []*TicketLine {
	out := make([]*TicketLine, 0, len(stored))
	for _, l := range stored {
		if m, ok := mutated[l.ID]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, l)
	}
	return out
}
