package scoring

// Severity grades a single reason.
type Severity string

const (
	Positive Severity = "positive"
	Neutral  Severity = "neutral"
	Caution  Severity = "caution"
	Negative Severity = "negative"
)

// Reason is one explained factor of a score. Rendering to text is left to the caller.
type Reason struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Reasons is an ordered list of reasons. The order is the evaluation order.
type Reasons []Reason

// Add appends a reason.
func (r *Reasons) Add(code string, sev Severity, msg string) {
	*r = append(*r, Reason{Code: code, Severity: sev, Message: msg})
}

// Codes returns the reason codes in order.
func (r Reasons) Codes() []string {
	out := make([]string, len(r))
	for i, reason := range r {
		out[i] = reason.Code
	}
	return out
}

// Messages returns the human readable messages in order.
func (r Reasons) Messages() []string {
	out := make([]string, len(r))
	for i, reason := range r {
		out[i] = reason.Message
	}
	return out
}
