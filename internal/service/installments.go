package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvelloso/finledger-go/internal/domain"
)

// ============================================================
// Installment schedule materialization
// ============================================================

// addMonthsClamp shifts t forward by the given number of months, preserving
// the day-of-month and clamping to the last day of the target month when the
// naive shift would overflow (Jan 31 + 1 month lands on the last day of
// February, not March 3). Amortization schedules must not drift to a later
// month when a due day near month-end is chosen.
func addMonthsClamp(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// materializeSchedule turns a loan's installment specification into the
// ordered list of installments to persist. LoanID is left zero; the caller
// stamps it after the loan row exists. A malformed or zero-count generation
// request yields an empty schedule.
func materializeSchedule(spec domain.InstallmentSpec, now time.Time) []domain.Installment {
	switch spec.Kind {
	case domain.InstallmentsExplicit, domain.InstallmentsNested:
		return convertExplicit(spec.List, now)
	case domain.InstallmentsGeneration:
		return generateSchedule(spec.Generation, now)
	default:
		return nil
	}
}

func convertExplicit(list []domain.SnapshotInstallment, now time.Time) []domain.Installment {
	out := make([]domain.Installment, 0, len(list))
	for idx, in := range list {
		number := in.NormalizedNumber()
		if number <= 0 {
			number = idx + 1
		}

		inst := domain.Installment{
			Number:  number,
			Amount:  in.Amount,
			DueDate: in.DueDate.OrNow(now),
		}
		if in.PartialAmountPaid != nil {
			inst.PartialAmountPaid = *in.PartialAmountPaid
		}
		inst.PrincipalComponent = in.PrincipalComponent
		inst.InterestComponent = in.InterestComponent
		if !in.PaidDate.IsZero() {
			pd := in.PaidDate.Time
			inst.PaidDate = &pd
		}

		// Status is derived from the paid amount, never trusted from the
		// wire: a snapshot claiming "paid" with zero paid amount stays
		// pending.
		inst.Status = inst.DeriveStatus()
		out = append(out, inst)
	}
	return out
}

func generateSchedule(gen domain.GenerationSpec, now time.Time) []domain.Installment {
	count := gen.NormalizedCount()
	amount := gen.NormalizedAmount()
	if count <= 0 || amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	first := gen.NormalizedFirstDate().OrNow(now)
	freq := gen.NormalizedFrequency()

	out := make([]domain.Installment, 0, count)
	for i := 0; i < count; i++ {
		due := first
		switch freq {
		case domain.FrequencyDaily:
			due = first.AddDate(0, 0, i)
		default:
			due = addMonthsClamp(first, i)
		}
		out = append(out, domain.Installment{
			Number:            i + 1,
			Amount:            amount,
			DueDate:           due,
			Status:            domain.InstallmentPending,
			PartialAmountPaid: decimal.Zero,
		})
	}
	return out
}
