package notify

import "time"

// Action is what the dispatcher does with a failed delivery.
type Action string

const (
	// ActionDeleteToken removes the token from the active set immediately.
	ActionDeleteToken Action = "delete_token"

	// ActionDeactivateToken flips the token inactive; it may be
	// reinstated by a later successful registration.
	ActionDeactivateToken Action = "deactivate_token"

	// ActionRetryLater hands the attempt to the retry queue.
	ActionRetryLater Action = "retry_later"

	// ActionInvestigate marks an unrecognized or provider-side code.
	// High-severity investigate cases also enter the retry queue.
	ActionInvestigate Action = "investigate"
)

// Severity grades how alarming a delivery error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Classification is the taxonomy entry for one provider error code.
type Classification struct {
	Code        string
	Severity    Severity
	Retryable   bool
	MaxRetries  int
	BackoffBase time.Duration
	Action      Action
}

// errorTable maps provider error codes to their classification. Kept as
// data so every code path, including the unknown-code default, is
// exhaustively unit-testable.
var errorTable = map[string]Classification{
	"DeviceNotRegistered": {
		Severity:   SeverityLow,
		Retryable:  false,
		MaxRetries: 0,
		Action:     ActionDeleteToken,
	},
	"InvalidCredentials": {
		Severity:   SeverityCritical,
		Retryable:  false,
		MaxRetries: 0,
		Action:     ActionInvestigate,
	},
	"MessageTooBig": {
		Severity:   SeverityMedium,
		Retryable:  false,
		MaxRetries: 0,
		Action:     ActionDeactivateToken,
	},
	"MessageRateExceeded": {
		Severity:    SeverityMedium,
		Retryable:   true,
		MaxRetries:  5,
		BackoffBase: 2 * time.Second,
		Action:      ActionRetryLater,
	},
	"ProviderUnavailable": {
		Severity:    SeverityHigh,
		Retryable:   true,
		MaxRetries:  4,
		BackoffBase: 10 * time.Second,
		Action:      ActionRetryLater,
	},
	"InternalServerError": {
		Severity:    SeverityHigh,
		Retryable:   true,
		MaxRetries:  3,
		BackoffBase: 5 * time.Second,
		Action:      ActionRetryLater,
	},
	"ExpiredToken": {
		Severity:   SeverityLow,
		Retryable:  false,
		MaxRetries: 0,
		Action:     ActionDeleteToken,
	},
}

// unknownCode is the conservative default for codes the table doesn't
// know: a single retry, flagged for investigation.
var unknownCode = Classification{
	Severity:    SeverityHigh,
	Retryable:   true,
	MaxRetries:  1,
	BackoffBase: 30 * time.Second,
	Action:      ActionInvestigate,
}

// Classify maps a provider error code to its taxonomy entry. It is
// total: unrecognized codes get the conservative default.
func Classify(code string) Classification {
	c, ok := errorTable[code]
	if !ok {
		c = unknownCode
	}
	c.Code = code
	return c
}

// needsRetryQueue reports whether a classified failure is handed to the
// retry queue rather than resolved with a token action.
func (c Classification) needsRetryQueue() bool {
	if c.Action == ActionRetryLater {
		return true
	}
	return c.Action == ActionInvestigate && c.Retryable &&
		(c.Severity == SeverityHigh || c.Severity == SeverityCritical)
}
