package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	late := time.Date(2024, 3, 15, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, "2024-03-15", DayKey(late))
	assert.Equal(t, DayKey(late), DayKey(StartOfDay(late)))
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), day)

	_, err = ParseDay("15/03/2024")
	assert.Error(t, err)
}

func TestValidateDateRangeUtils(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		end         time.Time
		maxDays     int
		expectError bool
	}{
		{"same_day", start, 62, false},
		{"same_day_earlier_clock", start.Add(-2 * time.Hour), 62, false},
		{"within_limit", start.AddDate(0, 0, 61), 62, false},
		{"over_limit", start.AddDate(0, 0, 62), 62, true},
		{"end_before_start", start.AddDate(0, 0, -1), 62, true},
		{"unbounded", start.AddDate(1, 0, 0), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDateRange(start, tt.end, tt.maxDays)
			if tt.expectError {
				assert.ErrorIs(t, err, ErrInvalidDateRange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDrawIDUtils(t *testing.T) {
	assert.NoError(t, ValidateDrawID(1))
	assert.Equal(t, ErrInvalidDrawID, ValidateDrawID(0))
	assert.Equal(t, ErrInvalidDrawID, ValidateDrawID(-3))
}

func TestLockKeysForUtils(t *testing.T) {
	keys := map[ResultKey]struct{}{
		{DrawID: 12, Day: "2024-03-15"}: {},
		{DrawID: 3, Day: "2024-03-16"}:  {},
		{DrawID: 3, Day: "2024-03-15"}:  {},
	}

	assert.Equal(t, []string{
		"draw:12:2024-03-15",
		"draw:3:2024-03-15",
		"draw:3:2024-03-16",
	}, lockKeysFor(keys))
	assert.Empty(t, lockKeysFor(nil))
}

func TestTicketIDsUtils(t *testing.T) {
	lines := []*TicketLine{{TicketID: 4}, {TicketID: 2}, {TicketID: 4}, {TicketID: 1}}
	assert.Equal(t, []int64{1, 2, 4}, ticketIDs(lines))
}

func TestTicketLineValidate(t *testing.T) {
	base := func() *TicketLine { return pendingLine(1, 10) }

	tests := []struct {
		name    string
		mutate  func(*TicketLine)
		wantErr bool
	}{
		{"pending", func(*TicketLine) {}, false},
		{"missing id", func(l *TicketLine) { l.ID = 0 }, true},
		{"missing ticket", func(l *TicketLine) { l.TicketID = 0 }, true},
		{"missing draw", func(l *TicketLine) { l.DrawID = 0 }, true},
		{"unknown status", func(l *TicketLine) { l.LineStatus = "void" }, true},
		{"winner without tier", func(l *TicketLine) { l.LineStatus = LineStatusWinner; l.IsWinner = true }, true},
		{"loser with tier", func(l *TicketLine) { l.LineStatus = LineStatusLoser; l.WinningPosition = 2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := base()
			tt.mutate(l)
			if tt.wantErr {
				assert.ErrorIs(t, l.Validate(), ErrMalformedLine)
			} else {
				assert.NoError(t, l.Validate())
			}
		})
	}
}
