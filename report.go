package settlement

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation names the batch entry point that produced a report
type Operation string

const (
	OpProcessForDate    Operation = "process_for_date"
	OpProcessForDraw    Operation = "process_for_draw"
	OpReprocessRange    Operation = "reprocess_range"
	OpRecalculatePrizes Operation = "recalculate_prizes"
)

// Warning codes surfaced on degraded settlements
const (
	WarnUnresolvablePrizeConfig = "unresolvableprizeconfig"
	WarnWinningPositionFallback = "winningpositionfallback"
	WarnDegradedPrizeTier       = "degradedprizetier"
)

// LineFailure records a line that could not be settled; the line stays pending
type LineFailure struct {
	LineID    int64  `json:"line_id"`
	Err       error  `json:"-"`
	ErrorMsg  string `json:"error_message"`
	Timestamp int64  `json:"timestamp"`
}

type lineFailureJSON struct {
	LineID    int64  `json:"line_id"`
	ErrorMsg  string `json:"error_message"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON serialises the error as its message
func (f LineFailure) MarshalJSON() ([]byte, error) {
	tmp := lineFailureJSON{
		LineID:    f.LineID,
		ErrorMsg:  f.ErrorMsg,
		Timestamp: f.Timestamp,
	}
	if tmp.ErrorMsg == "" && f.Err != nil {
		tmp.ErrorMsg = f.Err.Error()
	}
	return json.Marshal(tmp)
}

// UnmarshalJSON restores the message only; Err stays nil
func (f *LineFailure) UnmarshalJSON(data []byte) error {
	var tmp lineFailureJSON
	if err := json.Unmarshal(data, &tmp); err != nil {
		return err
	}
	f.LineID = tmp.LineID
	f.ErrorMsg = tmp.ErrorMsg
	f.Timestamp = tmp.Timestamp
	return nil
}

// Warning is a reportable degraded outcome of one line
type Warning struct {
	LineID  int64  `json:"line_id"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// BatchReport is what every batch operation returns
type BatchReport struct {
	RunID     string    `json:"run_id"`
	Operation Operation `json:"operation"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	DrawID    *int64    `json:"draw_id,omitempty"`

	LinesProcessed int             `json:"lines_processed"`
	WinnersFound   int             `json:"winners_found"`
	TicketsUpdated int             `json:"tickets_updated"`
	TotalPrize     decimal.Decimal `json:"total_prize"`
	PrizeDelta     decimal.Decimal `json:"prize_delta"` // recalculation only: new minus previous prize of touched lines

	FailedLines  []LineFailure `json:"failed_lines,omitempty"`
	Warnings     []Warning     `json:"warnings,omitempty"`
	SkippedLines []int64       `json:"skipped_lines,omitempty"` // pending lines without a published result

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

func newBatchReport(op Operation, start, end time.Time) *BatchReport {
	return &BatchReport{
		RunID:      uuid.NewString(),
		Operation:  op,
		Start:      DayKey(start),
		End:        DayKey(end),
		TotalPrize: decimal.Zero,
		PrizeDelta: decimal.Zero,
		StartedAt:  time.Now(),
	}
}

func (r *BatchReport) addFailure(lineID int64, err error) {
	r.FailedLines = append(r.FailedLines, LineFailure{
		LineID:    lineID,
		Err:       err,
		ErrorMsg:  err.Error(),
		Timestamp: time.Now().Unix(),
	})
}

func (r *BatchReport) addWarning(lineID int64, code, msg string) {
	r.Warnings = append(r.Warnings, Warning{LineID: lineID, Code: code, Message: msg})
}

func (r *BatchReport) finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// reset clears counters before a retried attempt
func (r *BatchReport) reset() {
	r.LinesProcessed = 0
	r.WinnersFound = 0
	r.TicketsUpdated = 0
	r.TotalPrize = decimal.Zero
	r.PrizeDelta = decimal.Zero
	r.FailedLines = nil
	r.Warnings = nil
	r.SkippedLines = nil
}

// HasWarning reports whether any line carries the given warning code
func (r *BatchReport) HasWarning(code string) bool {
	for _, w := range r.Warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

// FailedLineIDs returns the ids of lines that could not be settled
func (r *BatchReport) FailedLineIDs() []int64 {
	ids := make([]int64, 0, len(r.FailedLines))
	for _, f := range r.FailedLines {
		ids = append(ids, f.LineID)
	}
	return ids
}

// Validate checks the counters are consistent
func (r *BatchReport) Validate() error {
	if r.RunID == "" {
		return ErrInvalidParameters.WithDetails("report has no run id")
	}
	if r.LinesProcessed < 0 || r.WinnersFound < 0 || r.TicketsUpdated < 0 {
		return ErrInvalidParameters.WithDetails("negative counter")
	}
	if r.WinnersFound > r.LinesProcessed {
		return ErrInvalidParameters.WithDetails("more winners than processed lines")
	}
	return nil
}
