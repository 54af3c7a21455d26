// Package schedule builds installment plans. Build is pure: same inputs,
// same plan.
package schedule

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/BrightonDube/bizpilot-backend/pkg/enums"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
)

// Params describes the plan to generate. Remaining is the balance after the
// deposit; due dates run from StartDate (exclusive) to EndDate (inclusive).
type Params struct {
	Remaining decimal.Decimal
	Frequency enums.PaymentFrequency
	StartDate time.Time
	EndDate   time.Time
}

// Installment is one expected payment, numbered from 1.
type Installment struct {
	Number    int
	DueDate   time.Time
	AmountDue decimal.Decimal
}

var oneCent = decimal.New(1, -2)

// Build splits Remaining evenly across the periods that fit between start
// and end. The last installment absorbs the rounding remainder so the plan
// sums to Remaining exactly. A zero Remaining yields an empty plan; a
// duration shorter than one period yields a single installment due at the
// end date.
func Build(p Params) ([]Installment, error) {
	if !p.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment frequency "+string(p.Frequency))
	}
	if p.Remaining.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "remaining balance cannot be negative")
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end dates are required")
	}
	if !p.EndDate.After(p.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must be after start date")
	}

	if p.Remaining.IsZero() {
		return []Installment{}, nil
	}

	dueDates := dueDatesBetween(p.Frequency, p.StartDate, p.EndDate)
	if len(dueDates) == 0 {
		// shorter than one period, everything falls due at the end
		dueDates = []time.Time{p.EndDate}
	}

	// never split below one cent per installment
	maxParts := int(p.Remaining.Div(oneCent).IntPart())
	if maxParts > 0 && len(dueDates) > maxParts {
		dueDates = dueDates[:maxParts]
	}

	n := len(dueDates)
	per := p.Remaining.DivRound(decimal.NewFromInt(int64(n)), 2)
	installments := make([]Installment, 0, n)

	allocated := decimal.Zero
	for i, due := range dueDates {
		amount := per
		if i == n-1 {
			amount = p.Remaining.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		installments = append(installments, Installment{
			Number:    i + 1,
			DueDate:   due,
			AmountDue: amount,
		})
	}

	if !allocated.Equal(p.Remaining) {
		return nil, pkgerrors.New(pkgerrors.CodeConsistency, "schedule does not sum to remaining balance")
	}
	return installments, nil
}

// NextDueDate steps one period forward from the given date.
func NextDueDate(freq enums.PaymentFrequency, from time.Time) time.Time {
	switch freq {
	case enums.FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case enums.FrequencyBiWeekly:
		return from.AddDate(0, 0, 14)
	default:
		return from.AddDate(0, 1, 0)
	}
}

func dueDatesBetween(freq enums.PaymentFrequency, start time.Time, end time.Time) []time.Time {
	var dates []time.Time
	due := NextDueDate(freq, start)
	for !due.After(end) {
		dates = append(dates, due)
		due = NextDueDate(freq, due)
	}
	return dates
}
