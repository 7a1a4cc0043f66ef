package reconcile

import (
	"time"

	"github.com/mselser95/fill-reconciler/pkg/types"
)

// Check names one fill heuristic.
type Check string

const (
	CheckStatus    Check = "status-field"
	CheckQuantity  Check = "quantity"
	CheckPrice     Check = "price"
	CheckTimestamp Check = "timestamp"
)

//nolint:gochecknoglobals // fixed check order
var allChecks = []Check{CheckStatus, CheckQuantity, CheckPrice, CheckTimestamp}

// Verdict is the result of verifying one snapshot.
// Confidence > 0 implies Filled.
type Verdict struct {
	Filled       bool
	Agreed       []Check
	Confidence   float64
	FillPrice    float64
	FillQuantity float64
	FilledAt     time.Time
}

// Has reports whether a given check agreed.
func (v Verdict) Has(c Check) bool {
	for _, agreed := range v.Agreed {
		if agreed == c {
			return true
		}
	}
	return false
}

// CheckNames returns the agreed checks as strings.
func (v Verdict) CheckNames() []string {
	names := make([]string, 0, len(v.Agreed))
	for _, c := range v.Agreed {
		names = append(names, string(c))
	}
	return names
}

// Verifier decides whether a snapshot shows a fill. Venues disagree on which field
// they update first, so any one agreeing heuristic is enough.
type Verifier struct{}

// NewVerifier creates a new verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// Verify runs every check against the snapshot. It has no side effects.
func (v *Verifier) Verify(snapshot *types.OrderSnapshot, intent types.OrderIntent) Verdict {
	if snapshot == nil {
		return Verdict{}
	}

	agreed := make([]Check, 0, len(allChecks))
	for _, c := range allChecks {
		if runCheck(c, snapshot, intent) {
			agreed = append(agreed, c)
		}
	}

	if len(agreed) == 0 {
		return Verdict{}
	}

	verdict := Verdict{
		Filled:       true,
		Agreed:       agreed,
		Confidence:   float64(len(agreed)) / float64(len(allChecks)),
		FillPrice:    snapshot.AvgFillPrice,
		FillQuantity: snapshot.FilledQuantity,
		FilledAt:     snapshot.FilledAt,
	}

	// Venue confirmed the fill without sizing it
	if verdict.FillQuantity <= 0 {
		verdict.FillQuantity = intent.Quantity
	}
	if verdict.FilledAt.IsZero() {
		verdict.FilledAt = snapshot.FetchedAt
	}

	return verdict
}

func runCheck(c Check, snapshot *types.OrderSnapshot, intent types.OrderIntent) bool {
	switch c {
	case CheckStatus:
		return snapshot.Status == types.StatusFilled
	case CheckQuantity:
		return snapshot.FilledQuantity > 0 && snapshot.FilledQuantity >= intent.Quantity
	case CheckPrice:
		return snapshot.AvgFillPrice > 0
	case CheckTimestamp:
		if snapshot.FilledAt.IsZero() {
			return false
		}
		return intent.SubmittedAt.IsZero() || !snapshot.FilledAt.Before(intent.SubmittedAt)
	default:
		return false
	}
}

// isPartial reports a fill that is started but not complete.
func isPartial(snapshot *types.OrderSnapshot, intent types.OrderIntent) bool {
	if snapshot == nil || snapshot.Status == types.StatusFilled {
		return false
	}
	return snapshot.FilledQuantity > 0 && snapshot.FilledQuantity < intent.Quantity
}
