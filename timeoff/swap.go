package timeoff

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// SWAP WORKING DAY VALIDATOR
// =============================================================================

// SwapInput is the caller's swap proposal. Day counts are never taken from
// the caller.
type SwapInput struct {
	RequestStart generic.TimePoint
	RequestEnd   generic.TimePoint
	OffStart     generic.TimePoint
	OffEnd       generic.TimePoint
}

// ValidateSwap checks a swap proposal and returns the detail with recomputed
// day counts.
//
// Rules:
//   - every day of the request range (days worked) is a non-working day
//   - every day of the off range (days taken off) is a working day
//   - calendar days of the request range == working days of the off range
//   - the two ranges do not overlap
//   - neither range overlaps another pending or approved swap of the requester
//
// existing is the requester's swap history; excludeID skips the request
// being edited.
func ValidateSwap(cal generic.Calendar, in SwapInput, requesterID string, existing []*Request, excludeID string) (*SwapDetail, error) {
	reqRange, err := generic.NewPeriod(in.RequestStart, in.RequestEnd)
	if err != nil {
		return nil, relabel(err, "request_range")
	}
	offRange, err := generic.NewPeriod(in.OffStart, in.OffEnd)
	if err != nil {
		return nil, relabel(err, "off_range")
	}
	if err := checkRangeLength("request_range", reqRange); err != nil {
		return nil, err
	}
	if err := checkRangeLength("off_range", offRange); err != nil {
		return nil, err
	}

	if d, bad := cal.FirstNonWorkingDayViolation(reqRange); bad {
		return nil, generic.NewValidationError("request_range",
			"%s is a working day; every day worked in a swap must be a non-working day", d)
	}
	if d, bad := cal.FirstWorkingDayViolation(offRange); bad {
		return nil, generic.NewValidationError("off_range",
			"%s is not a working day (%s)", d, nonWorkingReason(cal, d))
	}
	if reqRange.Overlaps(offRange) {
		return nil, generic.NewValidationError("off_range",
			"off range %s overlaps request range %s", offRange, reqRange)
	}

	requestDays := reqRange.CalendarDays()
	offDays := cal.WorkingDays(offRange)
	if requestDays != offDays {
		return nil, generic.NewValidationError("off_range",
			"day-count mismatch: request range has %d calendar day(s), off range has %d working day(s)",
			requestDays, offDays)
	}

	for _, other := range existing {
		if other == nil || other.Kind != KindSwap || other.Swap == nil {
			continue
		}
		if other.ID == excludeID || other.RequesterID != requesterID || !other.ActiveOn() {
			continue
		}
		for _, mine := range []generic.Period{reqRange, offRange} {
			for _, theirs := range []generic.Period{other.Swap.RequestRange(), other.Swap.OffRange()} {
				if mine.Overlaps(theirs) {
					return nil, generic.NewValidationError("swap",
						"%s overlaps swap request %s (%s)", mine, other.ID, other.Status)
				}
			}
		}
	}

	return &SwapDetail{
		RequestStart:     reqRange.Start,
		RequestEnd:       reqRange.End,
		OffStart:         offRange.Start,
		OffEnd:           offRange.End,
		RequestTotalDays: requestDays,
		OffTotalDays:     offDays,
	}, nil
}

func nonWorkingReason(cal generic.Calendar, d generic.TimePoint) string {
	if d.IsSunday() {
		return "Sunday"
	}
	if cal.Holidays != nil && cal.Holidays.IsHoliday(d) {
		return "holiday"
	}
	return "non-working day"
}

// relabel moves a period validation error onto the given field.
func relabel(err error, field string) error {
	if ve, ok := err.(*generic.ValidationError); ok {
		return &generic.ValidationError{Field: field, Message: ve.Message}
	}
	return fmt.Errorf("%s: %w", field, err)
}
