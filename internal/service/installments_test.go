package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rvelloso/finledger-go/internal/domain"
)

func TestAddMonthsClamp_MonthEndOverflow(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)

	feb := addMonthsClamp(jan31, 1)
	if feb.Month() != time.February || feb.Day() != 28 {
		t.Fatalf("Jan 31 + 1 month = %v, want Feb 28", feb)
	}

	mar := addMonthsClamp(jan31, 2)
	if mar.Month() != time.March || mar.Day() != 31 {
		t.Fatalf("Jan 31 + 2 months = %v, want Mar 31", mar)
	}
}

func TestAddMonthsClamp_LeapYear(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	feb := addMonthsClamp(jan31, 1)
	if feb.Month() != time.February || feb.Day() != 29 {
		t.Fatalf("Jan 31 2024 + 1 month = %v, want Feb 29", feb)
	}
}

func TestAddMonthsClamp_NoClampNeeded(t *testing.T) {
	jan15 := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)

	for i, want := range []time.Month{time.January, time.February, time.March, time.April} {
		got := addMonthsClamp(jan15, i)
		if got.Month() != want || got.Day() != 15 {
			t.Fatalf("Jan 15 + %d months = %v, want day 15 of %v", i, got, want)
		}
	}
}

func TestMaterializeSchedule_GenerationMonthly(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	spec := domain.InstallmentSpec{
		Kind:    domain.InstallmentsGeneration,
		Enabled: true,
		Generation: domain.GenerationSpec{
			FirstDueDate: domain.NewFlexTime(time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)),
			Frequency:    domain.FrequencyMonthly,
			Count:        2,
			Amount:       decimal.NewFromInt(500),
		},
	}

	list := materializeSchedule(spec, now)
	if len(list) != 2 {
		t.Fatalf("expected 2 installments, got %d", len(list))
	}
	if list[0].Number != 1 || list[0].DueDate.Day() != 31 || list[0].DueDate.Month() != time.January {
		t.Errorf("installment #1 due %v, want Jan 31", list[0].DueDate)
	}
	if list[1].Number != 2 || list[1].DueDate.Month() != time.February || list[1].DueDate.Day() != 28 {
		t.Errorf("installment #2 due %v, want last day of February", list[1].DueDate)
	}
	for _, inst := range list {
		if inst.Status != domain.InstallmentPending {
			t.Errorf("installment #%d status %q, want pending", inst.Number, inst.Status)
		}
		if !inst.Amount.Equal(decimal.NewFromInt(500)) {
			t.Errorf("installment #%d amount %s, want 500", inst.Number, inst.Amount)
		}
	}
}

func TestMaterializeSchedule_GenerationDaily(t *testing.T) {
	now := time.Now().UTC()
	first := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	spec := domain.InstallmentSpec{
		Kind:    domain.InstallmentsGeneration,
		Enabled: true,
		Generation: domain.GenerationSpec{
			FirstDueDate: domain.NewFlexTime(first),
			Frequency:    domain.FrequencyDaily,
			Count:        3,
			Amount:       decimal.NewFromInt(10),
		},
	}

	list := materializeSchedule(spec, now)
	if len(list) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(list))
	}
	for i, inst := range list {
		want := first.AddDate(0, 0, i)
		if !inst.DueDate.Equal(want) {
			t.Errorf("installment #%d due %v, want %v", inst.Number, inst.DueDate, want)
		}
	}
}

func TestMaterializeSchedule_ZeroCountYieldsEmpty(t *testing.T) {
	spec := domain.InstallmentSpec{
		Kind:       domain.InstallmentsGeneration,
		Enabled:    true,
		Generation: domain.GenerationSpec{Count: 0, Amount: decimal.NewFromInt(100)},
	}
	if got := materializeSchedule(spec, time.Now()); len(got) != 0 {
		t.Fatalf("expected empty schedule, got %d installments", len(got))
	}

	spec.Generation = domain.GenerationSpec{Count: 5}
	if got := materializeSchedule(spec, time.Now()); len(got) != 0 {
		t.Fatalf("expected empty schedule for zero amount, got %d installments", len(got))
	}
}

func TestMaterializeSchedule_ExplicitDerivesStatus(t *testing.T) {
	now := time.Now().UTC()
	hundred := decimal.NewFromInt(100)
	fifty := decimal.NewFromInt(50)

	spec := domain.InstallmentSpec{
		Kind:    domain.InstallmentsExplicit,
		Enabled: true,
		List: []domain.SnapshotInstallment{
			{Number: 1, Amount: hundred, PartialAmountPaid: &hundred, Status: "pending"},
			{Number: 2, Amount: hundred, PartialAmountPaid: &fifty},
			{Number: 3, Amount: hundred, Status: "paid"},
		},
	}

	list := materializeSchedule(spec, now)
	if len(list) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(list))
	}
	if list[0].Status != domain.InstallmentPaid {
		t.Errorf("fully covered installment derived %q, want paid", list[0].Status)
	}
	if list[1].Status != domain.InstallmentPartial {
		t.Errorf("half covered installment derived %q, want partial", list[1].Status)
	}
	// A wire status of "paid" with no paid amount is not trusted.
	if list[2].Status != domain.InstallmentPending {
		t.Errorf("uncovered installment derived %q, want pending", list[2].Status)
	}
}

func TestMaterializeSchedule_ExplicitNumbersFallBackToPosition(t *testing.T) {
	spec := domain.InstallmentSpec{
		Kind:    domain.InstallmentsNested,
		Enabled: true,
		List: []domain.SnapshotInstallment{
			{Amount: decimal.NewFromInt(10)},
			{Amount: decimal.NewFromInt(10)},
		},
	}
	list := materializeSchedule(spec, time.Now())
	if list[0].Number != 1 || list[1].Number != 2 {
		t.Fatalf("numbers = %d, %d; want 1, 2", list[0].Number, list[1].Number)
	}
}
