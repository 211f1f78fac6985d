package settlement

import (
	"slices"
	"strings"
)

// matchFunc computes the payout tier of a bet number against a decoded result; 0 means no win
type matchFunc func(bet string, d DecodedResult) int

// matchers is the static dispatch table, one entry per bet type
var matchers = [betTypeCount]matchFunc{
	BetTypeDirecto:   matchDirecto,
	BetTypeCombinado: matchCombinado,
	BetTypePulito:    matchPulito,
	BetTypePale:      matchPale,
	BetTypeTripleta:  matchTripleta,
	BetTypeSuperPale: matchSuperPale,

	BetTypeCash3Straight:      cash3Straight(func(d DecodedResult) string { return d.Cash3 }),
	BetTypeCash3Box:           cash3Box(func(d DecodedResult) string { return d.Cash3 }),
	BetTypeCash3FrontStraight: cash3Straight(DecodedResult.Play4Front),
	BetTypeCash3FrontBox:      cash3Box(DecodedResult.Play4Front),
	BetTypeCash3BackStraight:  cash3Straight(DecodedResult.Play4Back),
	BetTypeCash3BackBox:       cash3Box(DecodedResult.Play4Back),

	BetTypePlay4Straight: matchPlay4Straight,
	BetTypePlay4Box:      matchPlay4Box,
	BetTypePick5Straight: matchPick5Straight,
	BetTypePick5Box:      matchPick5Box,

	BetTypeBolita1: bolita(0),
	BetTypeBolita2: bolita(1),

	BetTypeSingulacion1: singulacion(0),
	BetTypeSingulacion2: singulacion(1),
	BetTypeSingulacion3: singulacion(2),

	BetTypePickTwo:       pickTwo(func(d DecodedResult) string { return d.Num1 }),
	BetTypePickTwoFront:  pickTwo(func(d DecodedResult) string { return window(d.Play4, 0, 2) }),
	BetTypePickTwoMiddle: pickTwo(func(d DecodedResult) string { return window(d.Play4, 1, 3) }),
	BetTypePickTwoBack:   pickTwo(func(d DecodedResult) string { return window(d.Play4, 2, 4) }),
}

// Match returns the payout tier of betNumber for the given bet type, 0 when it does not win.
// Malformed or wrong-length numbers never win.
func Match(betType BetType, betNumber string, d DecodedResult) int {
	if !betType.Valid() {
		betType = BetTypeDirecto
	}
	tier := matchers[betType](strings.TrimSpace(betNumber), d)
	if tier < 0 || tier > betType.MaxTier() {
		return 0
	}
	return tier
}

// MatchCode is Match keyed by a raw bet type code
func MatchCode(betTypeCode, betNumber string, d DecodedResult) int {
	return Match(ParseBetType(betTypeCode), betNumber, d)
}

// Dominican positional games

func matchDirecto(bet string, d DecodedResult) int {
	if !isDigits(bet, 2) {
		return 0
	}
	for i, num := range d.Positions() {
		if bet == num {
			return i + 1
		}
	}
	return 0
}

func matchCombinado(bet string, d DecodedResult) int {
	if !isDigits(bet, 2) {
		return 0
	}
	for i, num := range d.Positions() {
		if len(num) == 2 && sameDigits(bet, num) {
			return i + 1
		}
	}
	return 0
}

func matchPulito(bet string, d DecodedResult) int {
	if bet == "" || !isDigits(bet, len(bet)) || len(bet) > 2 {
		return 0
	}
	for i, num := range d.Positions() {
		if num != "" && strings.HasSuffix(num, bet) {
			return i + 1
		}
	}
	return 0
}

func matchPale(bet string, d DecodedResult) int {
	if !isDigits(bet, 4) {
		return 0
	}
	a, b := bet[:2], bet[2:]
	switch {
	case samePair(a, b, d.Num1, d.Num2):
		return 2
	case samePair(a, b, d.Num1, d.Num3):
		return 3
	case samePair(a, b, d.Num2, d.Num3):
		return 4
	}
	return 0
}

// matchSuperPale compares positions 1 and 3 of the same draw
func matchSuperPale(bet string, d DecodedResult) int {
	if !isDigits(bet, 4) {
		return 0
	}
	if samePair(bet[:2], bet[2:], d.Num1, d.Num3) {
		return 1
	}
	return 0
}

func matchTripleta(bet string, d DecodedResult) int {
	if !isDigits(bet, 6) {
		return 0
	}

	pool := make([]string, 0, 3)
	for _, num := range d.Positions() {
		if num != "" {
			pool = append(pool, num)
		}
	}

	hits := 0
	for _, pair := range []string{bet[0:2], bet[2:4], bet[4:6]} {
		if i := slices.Index(pool, pair); i >= 0 {
			pool = slices.Delete(pool, i, i+1)
			hits++
		}
	}

	switch hits {
	case 3:
		return 1
	case 2:
		return 2
	}
	return 0
}

// USA-style digit games

func cash3Straight(target func(DecodedResult) string) matchFunc {
	return func(bet string, d DecodedResult) int {
		drawn := target(d)
		if !isDigits(bet, 3) || bet != drawn {
			return 0
		}
		if distinctDigits(bet) == 1 {
			return 2
		}
		return 1
	}
}

func cash3Box(target func(DecodedResult) string) matchFunc {
	return func(bet string, d DecodedResult) int {
		drawn := target(d)
		if !isDigits(bet, 3) || len(drawn) != 3 || !sameDigits(bet, drawn) {
			return 0
		}
		switch distinctDigits(bet) {
		case 2:
			return 1
		case 3:
			return 2
		}
		return 0
	}
}

func matchPlay4Straight(bet string, d DecodedResult) int {
	if !isDigits(bet, 4) || bet != d.Play4 {
		return 0
	}
	if slices.Equal(digitShape(bet), []int{2, 2}) {
		return 2
	}
	return 1
}

var play4BoxTiers = map[string]int{
	"1111": 1,
	"211":  2,
	"22":   3,
	"31":   4,
}

func matchPlay4Box(bet string, d DecodedResult) int {
	if !isDigits(bet, 4) || len(d.Play4) != 4 || !sameDigits(bet, d.Play4) {
		return 0
	}
	return play4BoxTiers[shapeKey(bet)]
}

func matchPick5Straight(bet string, d DecodedResult) int {
	if !isDigits(bet, 5) || bet != d.Pick5 {
		return 0
	}
	if distinctDigits(bet) < 5 {
		return 2
	}
	return 1
}

var pick5BoxTiers = map[string]int{
	"41":    1,
	"32":    2,
	"311":   3,
	"221":   4,
	"2111":  5,
	"11111": 6,
}

func matchPick5Box(bet string, d DecodedResult) int {
	if !isDigits(bet, 5) || len(d.Pick5) != 5 || !sameDigits(bet, d.Pick5) {
		return 0
	}
	return pick5BoxTiers[shapeKey(bet)]
}

// Games derived from a window of a longer result

func bolita(offset int) matchFunc {
	return func(bet string, d DecodedResult) int {
		if isDigits(bet, 2) && bet == window(d.Cash3, offset, offset+2) {
			return 1
		}
		return 0
	}
}

func singulacion(pos int) matchFunc {
	return func(bet string, d DecodedResult) int {
		if isDigits(bet, 1) && bet == window(d.Cash3, pos, pos+1) {
			return 1
		}
		return 0
	}
}

func pickTwo(target func(DecodedResult) string) matchFunc {
	return func(bet string, d DecodedResult) int {
		drawn := target(d)
		if !isDigits(bet, 2) || len(drawn) != 2 || !sameDigits(bet, drawn) {
			return 0
		}
		if bet[0] == bet[1] {
			return 2
		}
		return 1
	}
}

// digit helpers

// isDigits reports whether s is exactly n ASCII digits
func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// sameDigits reports whether a and b hold the same multiset of digits
func sameDigits(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var counts [10]int
	for i := 0; i < len(a); i++ {
		if a[i] < '0' || a[i] > '9' || b[i] < '0' || b[i] > '9' {
			return false
		}
		counts[a[i]-'0']++
		counts[b[i]-'0']--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// samePair reports whether {a, b} equals {x, y} as a multiset
func samePair(a, b, x, y string) bool {
	if x == "" || y == "" {
		return false
	}
	return (a == x && b == y) || (a == y && b == x)
}

func distinctDigits(s string) int {
	return len(digitShape(s))
}

// digitShape returns the digit repeat counts in descending order, e.g. "1123" -> [2 1 1]
func digitShape(s string) []int {
	var counts [10]int
	for i := 0; i < len(s); i++ {
		counts[s[i]-'0']++
	}
	shape := make([]int, 0, len(s))
	for _, c := range counts {
		if c > 0 {
			shape = append(shape, c)
		}
	}
	slices.SortFunc(shape, func(a, b int) int { return b - a })
	return shape
}

func shapeKey(s string) string {
	var b strings.Builder
	for _, c := range digitShape(s) {
		b.WriteByte(byte('0' + c))
	}
	return b.String()
}
