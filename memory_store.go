package settlement

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

type memoryTxKey struct{}

type bancaKey struct{ pool, prizeType int64 }

type drawCfgKey struct{ draw, pool, prizeType int64 }

// MemoryStore is an in-process Store and TxManager. A transaction snapshots the data and
// restores it when fn fails.
type MemoryStore struct {
	mu sync.Mutex

	results    map[ResultKey]*Result
	lines      map[int64]*TicketLine
	tickets    map[int64]*Ticket
	prizeTypes map[int64][]PrizeType
	banca      map[bancaKey]BancaPrizeConfig
	drawCfg    map[drawCfgKey]DrawPrizeConfig

	failures map[string]error
	writes   int
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ TxManager = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:    make(map[ResultKey]*Result),
		lines:      make(map[int64]*TicketLine),
		tickets:    make(map[int64]*Ticket),
		prizeTypes: make(map[int64][]PrizeType),
		banca:      make(map[bancaKey]BancaPrizeConfig),
		drawCfg:    make(map[drawCfgKey]DrawPrizeConfig),
		failures:   make(map[string]error),
	}
}

// AddResult publishes a result
func (s *MemoryStore) AddResult(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.Key()] = &r
}

// AddTicket stores a ticket
func (s *MemoryStore) AddTicket(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = &t
}

// AddLine stores a line
func (s *MemoryStore) AddLine(l TicketLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[l.ID] = l.Clone()
}

// AddPrizeType stores a prize type
func (s *MemoryStore) AddPrizeType(pt PrizeType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prizeTypes[pt.BetTypeID] = append(s.prizeTypes[pt.BetTypeID], pt)
}

// SetBancaPrizeConfig stores a pool-wide override
func (s *MemoryStore) SetBancaPrizeConfig(c BancaPrizeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banca[bancaKey{c.BettingPoolID, c.PrizeTypeID}] = c
}

// SetDrawPrizeConfig stores a draw-specific override
func (s *MemoryStore) SetDrawPrizeConfig(c DrawPrizeConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawCfg[drawCfgKey{c.DrawID, c.BettingPoolID, c.PrizeTypeID}] = c
}

// FailOn makes the named method return err until cleared with a nil err
func (s *MemoryStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Line returns a copy of a stored line
func (s *MemoryStore) Line(id int64) (*TicketLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lines[id]
	if !ok {
		return nil, false
	}
	return l.Clone(), true
}

// Ticket returns a copy of a stored ticket
func (s *MemoryStore) Ticket(id int64) (*Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, false
	}
	c := *t
	return &c, true
}

// Writes counts rows written by SaveLines and SaveTicketAggregates
func (s *MemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *MemoryStore) fail(method string) error {
	return s.failures[method]
}

// Do runs fn atomically. Nested calls join the outer transaction.
func (s *MemoryStore) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	lines := make(map[int64]*TicketLine, len(s.lines))
	for id, l := range s.lines {
		lines[id] = l.Clone()
	}
	tickets := make(map[int64]*Ticket, len(s.tickets))
	for id, t := range s.tickets {
		c := *t
		tickets[id] = &c
	}
	writes := s.writes
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.lines, s.tickets, s.writes = lines, tickets, writes
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *MemoryStore) GetByDrawAndDate(_ context.Context, drawID int64, date time.Time) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByDrawAndDate"); err != nil {
		return nil, err
	}
	r, ok := s.results[ResultKey{DrawID: drawID, Day: DayKey(date)}]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (s *MemoryStore) GetAllForDate(_ context.Context, date time.Time) (map[int64]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetAllForDate"); err != nil {
		return nil, err
	}
	day := DayKey(date)
	out := make(map[int64]*Result)
	for k, r := range s.results {
		if k.Day == day {
			c := *r
			out[k.DrawID] = &c
		}
	}
	return out, nil
}

func (s *MemoryStore) GetAllForRange(_ context.Context, start, end time.Time) (map[ResultKey]*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetAllForRange"); err != nil {
		return nil, err
	}
	from, to := DayKey(start), DayKey(end)
	out := make(map[ResultKey]*Result)
	for k, r := range s.results {
		if k.Day >= from && k.Day <= to {
			c := *r
			out[k] = &c
		}
	}
	return out, nil
}

// selectLines returns sorted copies of lines of live tickets accepted by keep
func (s *MemoryStore) selectLines(keep func(*TicketLine) bool) []*TicketLine {
	var out []*TicketLine
	for _, l := range s.lines {
		if t, ok := s.tickets[l.TicketID]; ok && t.IsCancelled {
			continue
		}
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *TicketLine) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *MemoryStore) GetPending(_ context.Context, drawDate time.Time, drawID *int64) ([]*TicketLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPending"); err != nil {
		return nil, err
	}
	day := DayKey(drawDate)
	return s.selectLines(func(l *TicketLine) bool {
		return l.LineStatus == LineStatusPending && DayKey(l.DrawDate) == day &&
			(drawID == nil || l.DrawID == *drawID)
	}), nil
}

func (s *MemoryStore) GetPendingInRange(_ context.Context, start, end time.Time) ([]*TicketLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPendingInRange"); err != nil {
		return nil, err
	}
	from, to := DayKey(start), DayKey(end)
	return s.selectLines(func(l *TicketLine) bool {
		day := DayKey(l.DrawDate)
		return l.LineStatus == LineStatusPending && day >= from && day <= to
	}), nil
}

func (s *MemoryStore) GetWinners(_ context.Context, drawDate time.Time) ([]*TicketLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetWinners"); err != nil {
		return nil, err
	}
	day := DayKey(drawDate)
	return s.selectLines(func(l *TicketLine) bool {
		return l.LineStatus == LineStatusWinner && DayKey(l.DrawDate) == day
	}), nil
}

func (s *MemoryStore) SaveLines(_ context.Context, lines []*TicketLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveLines"); err != nil {
		return err
	}
	for _, l := range lines {
		s.lines[l.ID] = l.Clone()
	}
	s.writes += len(lines)
	return nil
}

func (s *MemoryStore) GetTickets(_ context.Context, ids []int64) (map[int64]*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetTickets"); err != nil {
		return nil, err
	}
	out := make(map[int64]*Ticket, len(ids))
	for _, id := range ids {
		if t, ok := s.tickets[id]; ok {
			c := *t
			out[id] = &c
		}
	}
	return out, nil
}

func (s *MemoryStore) GetTicketLines(_ context.Context, ticketID int64) ([]*TicketLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetTicketLines"); err != nil {
		return nil, err
	}
	var out []*TicketLine
	for _, l := range s.lines {
		if l.TicketID == ticketID {
			out = append(out, l.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *TicketLine) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) SaveTicketAggregates(_ context.Context, tickets []*Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveTicketAggregates"); err != nil {
		return err
	}
	for _, t := range tickets {
		stored, ok := s.tickets[t.ID]
		if !ok {
			return ErrTicketNotFound
		}
		stored.State = t.State
		stored.WinningLines = t.WinningLines
		stored.TotalPrize = t.TotalPrize
	}
	s.writes += len(tickets)
	return nil
}

func (s *MemoryStore) GetPrizeTypes(_ context.Context, prizeBetTypeID int64) ([]PrizeType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetPrizeTypes"); err != nil {
		return nil, err
	}
	return slices.Clone(s.prizeTypes[prizeBetTypeID]), nil
}

func (s *MemoryStore) GetBancaPrizeConfig(_ context.Context, bettingPoolID, prizeTypeID int64) (*BancaPrizeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetBancaPrizeConfig"); err != nil {
		return nil, err
	}
	c, ok := s.banca[bancaKey{bettingPoolID, prizeTypeID}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) GetDrawPrizeConfig(_ context.Context, drawID, bettingPoolID, prizeTypeID int64) (*DrawPrizeConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetDrawPrizeConfig"); err != nil {
		return nil, err
	}
	c, ok := s.drawCfg[drawCfgKey{drawID, bettingPoolID, prizeTypeID}]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
