package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEntry(t *testing.T) {
	cases := []struct {
		name     string
		category string
		amount   float64
		want     error
	}{
		{"expense", "food", -50, nil},
		{"income", "salary", 2000, nil},
		{"zero allowed", "misc", 0, nil},
		{"empty category", "", 10, ErrEmptyCategory},
		{"blank category", "   ", 10, ErrEmptyCategory},
		{"nan", "food", math.NaN(), ErrInvalidAmount},
		{"positive inf", "food", math.Inf(1), ErrInvalidAmount},
		{"negative inf", "food", math.Inf(-1), ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEntry(tc.category, tc.amount)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{Category: "food", Amount: -1, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, good.Validate())

	zeroDate := good
	zeroDate.Date = time.Time{}
	assert.Error(t, zeroDate.Validate())

	assert.True(t, good.IsExpense())
	assert.False(t, Transaction{Amount: 0}.IsExpense())
}

func TestStorageError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("save", cause)

	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "storage save: disk full", err.Error())

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Op)

	assert.NoError(t, NewStorageError("load", nil))
}

func TestStateCloneIsDeep(t *testing.T) {
	s := NewState("2024-03")
	s.Transactions = append(s.Transactions, Transaction{Category: "food", Amount: -5})
	s.MonthlyHistory["2024-02"] = Totals{"food": -10}

	c := s.Clone()
	c.Transactions[0].Amount = 99
	c.MonthlyHistory["2024-02"]["food"] = 99
	c.MonthlyHistory["2024-01"] = Totals{}

	assert.Equal(t, -5.0, s.Transactions[0].Amount)
	assert.Equal(t, -10.0, s.MonthlyHistory["2024-02"]["food"])
	assert.Len(t, s.MonthlyHistory, 1)
}
