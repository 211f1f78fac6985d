package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeBetTypeCode(t *testing.T) {
	tests := map[string]string{
		"Super Palé":      "SUPER_PALE",
		" cash-3 box ":    "CASH_3_BOX",
		"pick2/front":     "PICK2_FRONT",
		"singulación__1":  "SINGULACION_1",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeBetTypeCode(in), in)
	}
}

func TestParseBetType(t *testing.T) {
	tests := []struct {
		code string
		want BetType
	}{
		{"DIRECTO", BetTypeDirecto},
		{"Super Palé", BetTypeSuperPale},
		{"cash3 box", BetTypeCash3Box},
		{"Cash-3 Front Straight", BetTypeCash3FrontStraight},
		{"play4_box", BetTypePlay4Box},
		{"Pick 5 Straight", BetTypePick5Straight},
		{"Bolita 2", BetTypeBolita2},
		{"Singulación 3", BetTypeSingulacion3},
		{"pick2 middle", BetTypePickTwoMiddle},
		{"Box", BetTypeCombinado},
		{"lotto", BetTypeDirecto},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBetType(tt.code))
		})
	}
}

func TestLookupBetType_Unknown(t *testing.T) {
	_, ok := LookupBetType("lotto")
	assert.False(t, ok)

	bt, ok := LookupBetType("tripleta")
	assert.True(t, ok)
	assert.Equal(t, BetTypeTripleta, bt)
}

func TestBetType_StringAndValid(t *testing.T) {
	assert.Equal(t, "SUPER_PALE", BetTypeSuperPale.String())
	assert.Equal(t, "UNKNOWN", BetType(-1).String())
	assert.False(t, betTypeCount.Valid())
	assert.Equal(t, 0, BetType(99).MaxTier())
	assert.Equal(t, 6, BetTypePick5Box.MaxTier())
}
