package settlement

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// BetType is the settlement family of a ticket line
type BetType int

const (
	BetTypeDirecto BetType = iota
	BetTypeCombinado
	BetTypePulito
	BetTypePale
	BetTypeTripleta
	BetTypeSuperPale
	BetTypeCash3Straight
	BetTypeCash3Box
	BetTypeCash3FrontStraight
	BetTypeCash3FrontBox
	BetTypeCash3BackStraight
	BetTypeCash3BackBox
	BetTypePlay4Straight
	BetTypePlay4Box
	BetTypePick5Straight
	BetTypePick5Box
	BetTypeBolita1
	BetTypeBolita2
	BetTypeSingulacion1
	BetTypeSingulacion2
	BetTypeSingulacion3
	BetTypePickTwo
	BetTypePickTwoFront
	BetTypePickTwoMiddle
	BetTypePickTwoBack

	betTypeCount
)

type betTypeInfo struct {
	code    string
	aliases []string
	maxTier int
}

var betTypeTable = [betTypeCount]betTypeInfo{
	BetTypeDirecto:            {code: "DIRECTO", aliases: []string{"QUINIELA"}, maxTier: 3},
	BetTypeCombinado:          {code: "COMBINADO", aliases: []string{"BOX"}, maxTier: 3},
	BetTypePulito:             {code: "PULITO", maxTier: 3},
	BetTypePale:               {code: "PALE", maxTier: 4},
	BetTypeTripleta:           {code: "TRIPLETA", maxTier: 2},
	BetTypeSuperPale:          {code: "SUPER_PALE", maxTier: 1},
	BetTypeCash3Straight:      {code: "CASH3_STRAIGHT", maxTier: 2},
	BetTypeCash3Box:           {code: "CASH3_BOX", maxTier: 2},
	BetTypeCash3FrontStraight: {code: "CASH3_FRONT_STRAIGHT", maxTier: 2},
	BetTypeCash3FrontBox:      {code: "CASH3_FRONT_BOX", maxTier: 2},
	BetTypeCash3BackStraight:  {code: "CASH3_BACK_STRAIGHT", maxTier: 2},
	BetTypeCash3BackBox:       {code: "CASH3_BACK_BOX", maxTier: 2},
	BetTypePlay4Straight:      {code: "PLAY4_STRAIGHT", maxTier: 2},
	BetTypePlay4Box:           {code: "PLAY4_BOX", maxTier: 4},
	BetTypePick5Straight:      {code: "PICK5_STRAIGHT", maxTier: 2},
	BetTypePick5Box:           {code: "PICK5_BOX", maxTier: 6},
	BetTypeBolita1:            {code: "BOLITA_1", maxTier: 1},
	BetTypeBolita2:            {code: "BOLITA_2", maxTier: 1},
	BetTypeSingulacion1:       {code: "SINGULACION_1", maxTier: 1},
	BetTypeSingulacion2:       {code: "SINGULACION_2", maxTier: 1},
	BetTypeSingulacion3:       {code: "SINGULACION_3", maxTier: 1},
	BetTypePickTwo:            {code: "PICK_TWO", aliases: []string{"PICK2"}, maxTier: 2},
	BetTypePickTwoFront:       {code: "PICK_TWO_FRONT", aliases: []string{"PICK2_FRONT"}, maxTier: 2},
	BetTypePickTwoMiddle:      {code: "PICK_TWO_MIDDLE", aliases: []string{"PICK2_MIDDLE"}, maxTier: 2},
	BetTypePickTwoBack:        {code: "PICK_TWO_BACK", aliases: []string{"PICK2_BACK"}, maxTier: 2},
}

// betTypeByCode is keyed by the compact form of every code and alias
var betTypeByCode = func() map[string]BetType {
	m := make(map[string]BetType, int(betTypeCount)*2)
	for bt := BetType(0); bt < betTypeCount; bt++ {
		info := betTypeTable[bt]
		m[compactCode(info.code)] = bt
		for _, alias := range info.aliases {
			m[compactCode(alias)] = bt
		}
	}
	return m
}()

// String returns the canonical code
func (b BetType) String() string {
	if !b.Valid() {
		return "UNKNOWN"
	}
	return betTypeTable[b].code
}

// Valid reports whether b is a known bet type
func (b BetType) Valid() bool {
	return b >= 0 && b < betTypeCount
}

// MaxTier is the highest payout tier the family can produce
func (b BetType) MaxTier() int {
	if !b.Valid() {
		return 0
	}
	return betTypeTable[b].maxTier
}

// ParseBetType maps a free-form code ("Super Palé", "cash-3 box") to its bet type.
// Unknown codes settle as Directo.
func ParseBetType(code string) BetType {
	bt, ok := LookupBetType(code)
	if !ok {
		return BetTypeDirecto
	}
	return bt
}

// LookupBetType is ParseBetType without the Directo fallback
func LookupBetType(code string) (BetType, bool) {
	bt, ok := betTypeByCode[compactCode(NormalizeBetTypeCode(code))]
	return bt, ok
}

// NormalizeBetTypeCode trims, strips diacritics, uppercases and joins words with "_"
func NormalizeBetTypeCode(code string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(code))
	if err != nil {
		folded = strings.TrimSpace(code)
	}

	fields := strings.FieldsFunc(strings.ToUpper(folded), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.' || r == '/'
	})
	return strings.Join(fields, "_")
}

func compactCode(code string) string {
	return strings.ReplaceAll(strings.ToUpper(code), "_", "")
}
