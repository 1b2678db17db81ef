package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

func TestGenerateScheduleMonthlyClamping(t *testing.T) {
	// 1000.00 over 3 monthly installments starting Jan 31 2024: the leap
	// February clamps to the 29th, March returns to the 31st, and the
	// remainder cent lands on the first row.
	total := FromMinorUnits(100000, 2)
	rows, err := GenerateSchedule(total, NewDate(2024, time.January, 31), 3, FrequencyMonthly)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "2024-01-31", rows[0].DueDate.String())
	assert.Equal(t, "2024-02-29", rows[1].DueDate.String())
	assert.Equal(t, "2024-03-31", rows[2].DueDate.String())

	assert.Equal(t, int64(33334), rows[0].Amount.MinorUnits())
	assert.Equal(t, int64(33333), rows[1].Amount.MinorUnits())
	assert.Equal(t, int64(33333), rows[2].Amount.MinorUnits())

	sum := FromMinorUnits(0, 2)
	for _, row := range rows {
		sum = sum.Add(row.Amount)
		assert.False(t, row.IsPaid)
		assert.Nil(t, row.PaidDate)
		assert.Nil(t, row.PaymentMethod)
	}
	assert.True(t, sum.Equal(total))
}

func TestGenerateScheduleYearly(t *testing.T) {
	total := FromMinorUnits(36000, 2)
	rows, err := GenerateSchedule(total, NewDate(2024, time.February, 29), 3, FrequencyYearly)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-29", rows[0].DueDate.String())
	assert.Equal(t, "2025-02-28", rows[1].DueDate.String())
	assert.Equal(t, "2026-02-28", rows[2].DueDate.String())
}

func TestGenerateScheduleDatesStrictlyAscending(t *testing.T) {
	tests := []struct {
		name  string
		start Date
		count int
		freq  Frequency
	}{
		{name: "monthly from month end", start: NewDate(2023, time.October, 31), count: 24, freq: FrequencyMonthly},
		{name: "monthly mid-month", start: NewDate(2024, time.June, 14), count: 12, freq: FrequencyMonthly},
		{name: "yearly from leap day", start: NewDate(2024, time.February, 29), count: 10, freq: FrequencyYearly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := GenerateSchedule(FromMinorUnits(999999, 2), tt.start, tt.count, tt.freq)
			require.NoError(t, err)
			require.Len(t, rows, tt.count)

			assert.True(t, rows[0].DueDate.Equal(tt.start))
			for i := 1; i < len(rows); i++ {
				assert.True(t, rows[i-1].DueDate.Before(rows[i].DueDate),
					"row %d (%s) not after row %d (%s)", i, rows[i].DueDate, i-1, rows[i-1].DueDate)
				assert.True(t, rows[i].DueDate.Equal(dueDateAt(tt.start, tt.freq, i)))
			}
		})
	}
}

func TestGenerateScheduleInvalid(t *testing.T) {
	total := FromMinorUnits(100000, 2)
	start := NewDate(2024, time.January, 1)

	tests := []struct {
		name  string
		total Money
		count int
		freq  Frequency
	}{
		{name: "zero count", total: total, count: 0, freq: FrequencyMonthly},
		{name: "negative count", total: total, count: -1, freq: FrequencyMonthly},
		{name: "zero total", total: FromMinorUnits(0, 2), count: 3, freq: FrequencyMonthly},
		{name: "unknown frequency", total: total, count: 3, freq: Frequency("weekly")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSchedule(tt.total, start, tt.count, tt.freq)
			assert.Equal(t, customError.ErrCodeInvalidSchedule, customError.CodeOf(err))
		})
	}
}
