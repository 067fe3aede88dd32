package timeoff

import (
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// REPLACE DAY VALIDATOR
// =============================================================================

// ReplaceInput is one worked day exchanged for one day off.
type ReplaceInput struct {
	RequestDate      generic.TimePoint
	CompensatoryDate generic.TimePoint
}

// ValidateReplace checks a replace-day proposal. The worked day may be any
// calendar day; the compensatory day must be a working day. A request for
// the same (employee, requestDate, compensatoryDate) blocks a new one unless
// it was cancelled.
func ValidateReplace(cal generic.Calendar, in ReplaceInput, requesterID string, existing []*Request, excludeID string) (*ReplaceDetail, error) {
	if in.RequestDate.IsZero() {
		return nil, generic.NewValidationError("request_date", "is required")
	}
	if in.CompensatoryDate.IsZero() {
		return nil, generic.NewValidationError("compensatory_date", "is required")
	}
	if in.RequestDate.Equal(in.CompensatoryDate) {
		return nil, generic.NewValidationError("compensatory_date", "must differ from the request date")
	}
	if !cal.IsWorkingDay(in.CompensatoryDate) {
		return nil, generic.NewValidationError("compensatory_date",
			"%s is not a working day (%s)", in.CompensatoryDate, nonWorkingReason(cal, in.CompensatoryDate))
	}

	for _, other := range existing {
		if other == nil || other.Kind != KindReplace || other.Replace == nil {
			continue
		}
		if other.ID == excludeID || other.RequesterID != requesterID || other.Status == workflow.StateCancelled {
			continue
		}
		if other.Replace.RequestDate.Equal(in.RequestDate) && other.Replace.CompensatoryDate.Equal(in.CompensatoryDate) {
			return nil, generic.NewValidationError("replace",
				"duplicate of request %s (%s) for %s -> %s", other.ID, other.Status, in.RequestDate, in.CompensatoryDate)
		}
	}

	return &ReplaceDetail{RequestDate: in.RequestDate, CompensatoryDate: in.CompensatoryDate}, nil
}
