package provider

import "errors"

type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailure
	StatusUnsupported
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

type FailureKind string

const (
	// FailureProvider is a vendor-reported or transport error.
	FailureProvider FailureKind = "provider"
	// FailureEmpty means the vendor answered without a usable payload.
	FailureEmpty FailureKind = "empty"
	// FailureMalformed means the vendor answered, and billed for it, but the
	// payload could not be parsed.
	FailureMalformed FailureKind = "malformed"
	// FailureExhausted is returned by the router when no adapter succeeded.
	FailureExhausted FailureKind = "exhausted"
)

var ErrExhausted = errors.New("provider: all adapters exhausted")

type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Categorization is the structured answer of the categorize capability.
type Categorization struct {
	Category      string  `json:"category"`
	IsNewCategory bool    `json:"is_new_category"`
	Subcategory   string  `json:"subcategory"`
	IsContentIdea bool    `json:"is_content_idea"`
	Confidence    float64 `json:"confidence"`
}

// Result is the tagged outcome of a capability call. Exactly one of the
// payload fields is meaningful on success, depending on the capability.
type Result struct {
	Status Status

	Provider       string
	Model          string
	Text           string
	Audio          []byte
	Categorization *Categorization
	Usage          Usage

	Err       error
	Kind      FailureKind
	Retryable bool
}

func TextResult(model, text string, usage Usage) Result {
	return Result{Status: StatusSuccess, Model: model, Text: text, Usage: usage}
}

func AudioResult(model string, audio []byte, usage Usage) Result {
	return Result{Status: StatusSuccess, Model: model, Audio: audio, Usage: usage}
}

func CategorizationResult(model string, c Categorization, usage Usage) Result {
	return Result{Status: StatusSuccess, Model: model, Categorization: &c, Usage: usage}
}

// Failure wraps err. retryable must only be true for rate-limit or quota
// conditions.
func Failure(err error, retryable bool) Result {
	return Result{Status: StatusFailure, Err: err, Kind: FailureProvider, Retryable: retryable}
}

// Malformed is a non-retryable failure that keeps the usage of the call.
func Malformed(model string, err error, usage Usage) Result {
	return Result{Status: StatusFailure, Model: model, Err: err, Kind: FailureMalformed, Usage: usage}
}

// CategorizationFromText parses the text of a successful categorize call.
func CategorizationFromText(model string, res Result) Result {
	if !res.OK() {
		return res
	}
	c, err := ParseCategorization(res.Text)
	if err != nil {
		return Malformed(model, err, res.Usage)
	}
	return CategorizationResult(model, c, res.Usage)
}

func NotSupported() Result {
	return Result{Status: StatusUnsupported}
}

func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
