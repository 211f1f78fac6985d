package settlement

// DecodedResult holds the positional sub-numbers of a result. Missing parts are empty.
type DecodedResult struct {
	Num1 string
	Num2 string
	Num3 string

	Cash3 string
	Play4 string
	Pick5 string
}

// DecodeResult splits the winning and additional number strings into sub-numbers
func DecodeResult(r *Result) DecodedResult {
	if r == nil {
		return DecodedResult{}
	}

	d := DecodedResult{
		Num1: window(r.WinningNumber, 0, 2),
		Num2: window(r.WinningNumber, 2, 4),
		Num3: window(r.WinningNumber, 4, 6),
	}
	if r.AdditionalNumber != nil {
		extra := *r.AdditionalNumber
		d.Cash3 = window(extra, 0, 3)
		d.Play4 = window(extra, 3, 7)
		d.Pick5 = window(extra, 7, 12)
	}
	return d
}

// Positions returns num1..num3 in order
func (d DecodedResult) Positions() [3]string {
	return [3]string{d.Num1, d.Num2, d.Num3}
}

// Play4Front is the first three digits of play4
func (d DecodedResult) Play4Front() string { return window(d.Play4, 0, 3) }

// Play4Back is the last three digits of play4
func (d DecodedResult) Play4Back() string { return window(d.Play4, 1, 4) }

// window returns s[from:to] only when s is long enough to hold the whole window
func window(s string, from, to int) string {
	if len(s) < to {
		return ""
	}
	return s[from:to]
}
