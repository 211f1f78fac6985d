package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// gameTypeToPrizeBetType translates TicketLine.BetTypeID (game classification) into
// PrizeType.BetTypeID (prize configuration). The two numbering spaces are independent:
// variants that pay from the same prize table share one prize bet type.
var gameTypeToPrizeBetType = map[int64]int64{
	1:  1,  // Directo
	2:  2,  // Pale
	3:  3,  // Tripleta
	4:  4,  // Cash3 Straight
	5:  5,  // Cash3 Box
	6:  6,  // Play4 Straight
	7:  7,  // Play4 Box
	8:  8,  // Super Pale
	9:  9,  // Bolita 1
	10: 9,  // Bolita 2
	11: 10, // Singulacion 1
	12: 10, // Singulacion 2
	13: 10, // Singulacion 3
	14: 11, // Pick5 Straight
	15: 12, // Pick5 Box
	16: 13, // Pick Two
	17: 4,  // Cash3 Front Straight
	18: 5,  // Cash3 Front Box
	19: 4,  // Cash3 Back Straight
	20: 5,  // Cash3 Back Box
	21: 13, // Pick Two Front
	22: 13, // Pick Two Back
	23: 13, // Pick Two Middle
	24: 14, // Pulito
	25: 15, // Combinado
}

// PrizeBetTypeFor returns the prize-config bet type of a game type; unmapped ids pass through
func PrizeBetTypeFor(gameTypeID int64) int64 {
	if id, ok := gameTypeToPrizeBetType[gameTypeID]; ok {
		return id
	}
	return gameTypeID
}

// PrizeSource tells which level of the cascade supplied a multiplier
type PrizeSource string

const (
	PrizeSourceDraw    PrizeSource = "draw"
	PrizeSourceBanca   PrizeSource = "banca"
	PrizeSourceDefault PrizeSource = "default"
)

// Selector identifies one multiplier lookup
type Selector struct {
	BetTypeID     int64 // game type id as stored on the line
	Tier          int
	BettingPoolID int64 // 0 means no pool
	DrawID        int64
}

// Resolution is the outcome of a multiplier lookup
type Resolution struct {
	PrizeTypeID    int64
	PrizeBetTypeID int64
	DisplayOrder   int
	Multiplier     decimal.Decimal
	Source         PrizeSource
	Degraded       bool // the tier had no prize type; the lowest display order was used
}

// PrizeAmount is betAmount * multiplier
func PrizeAmount(betAmount, multiplier decimal.Decimal) decimal.Decimal {
	return betAmount.Mul(multiplier)
}

// PrizeResolver resolves multipliers through the draw -> banca -> default cascade.
// Resolutions are memoised for the lifetime of the resolver, which is one batch.
type PrizeResolver struct {
	store  PrizeConfigStore
	logger Logger

	mu   sync.Mutex
	memo map[Selector]Resolution
}

// NewPrizeResolver creates a resolver backed by store
func NewPrizeResolver(store PrizeConfigStore, logger Logger) *PrizeResolver {
	if logger == nil {
		logger = NewSilentLogger()
	}
	return &PrizeResolver{
		store:  store,
		logger: logger,
		memo:   make(map[Selector]Resolution),
	}
}

// Resolve returns the multiplier for sel. It fails with ErrUnresolvablePrizeConfig when the
// bet type has no active prize type at all; any other error comes from the store.
func (r *PrizeResolver) Resolve(ctx context.Context, sel Selector) (Resolution, error) {
	if sel.Tier <= 0 {
		return Resolution{}, ErrInvalidTier
	}

	r.mu.Lock()
	cached, ok := r.memo[sel]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	prizeBetType := PrizeBetTypeFor(sel.BetTypeID)
	types, err := r.store.GetPrizeTypes(ctx, prizeBetType)
	if err != nil {
		return Resolution{}, fmt.Errorf("load prize types for bet type %d: %w", prizeBetType, err)
	}

	pt, degraded := selectPrizeType(types, sel.Tier)
	if pt == nil {
		return Resolution{}, fmt.Errorf("%w: bet type %d (game type %d), tier %d",
			ErrUnresolvablePrizeConfig, prizeBetType, sel.BetTypeID, sel.Tier)
	}
	if degraded {
		r.logger.Warn("no prize type for bet type %d tier %d, degrading to display order %d (prize type %d)",
			prizeBetType, sel.Tier, pt.DisplayOrder, pt.ID)
	}

	res := Resolution{
		PrizeTypeID:    pt.ID,
		PrizeBetTypeID: prizeBetType,
		DisplayOrder:   pt.DisplayOrder,
		Multiplier:     pt.DefaultMultiplier,
		Source:         PrizeSourceDefault,
		Degraded:       degraded,
	}

	if sel.BettingPoolID != 0 {
		if err := r.applyOverrides(ctx, sel, &res); err != nil {
			return Resolution{}, err
		}
	}

	r.mu.Lock()
	r.memo[sel] = res
	r.mu.Unlock()
	return res, nil
}

func (r *PrizeResolver) applyOverrides(ctx context.Context, sel Selector, res *Resolution) error {
	drawCfg, err := r.store.GetDrawPrizeConfig(ctx, sel.DrawID, sel.BettingPoolID, res.PrizeTypeID)
	if err != nil {
		return fmt.Errorf("load draw prize config (draw %d, pool %d, prize type %d): %w",
			sel.DrawID, sel.BettingPoolID, res.PrizeTypeID, err)
	}
	if drawCfg != nil {
		res.Multiplier = drawCfg.CustomValue
		res.Source = PrizeSourceDraw
		return nil
	}

	bancaCfg, err := r.store.GetBancaPrizeConfig(ctx, sel.BettingPoolID, res.PrizeTypeID)
	if err != nil {
		return fmt.Errorf("load banca prize config (pool %d, prize type %d): %w",
			sel.BettingPoolID, res.PrizeTypeID, err)
	}
	if bancaCfg != nil {
		res.Multiplier = bancaCfg.CustomValue
		res.Source = PrizeSourceBanca
	}
	return nil
}

// selectPrizeType picks the active prize type whose display order equals tier, falling
// back to the active one with the lowest display order
func selectPrizeType(types []PrizeType, tier int) (*PrizeType, bool) {
	var lowest *PrizeType
	for i := range types {
		pt := &types[i]
		if !pt.IsActive {
			continue
		}
		if pt.DisplayOrder == tier {
			return pt, false
		}
		if lowest == nil || pt.DisplayOrder < lowest.DisplayOrder {
			lowest = pt
		}
	}
	if lowest == nil {
		return nil, false
	}
	return lowest, true
}
