package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SvetoslavVachkov/Diploma-sub000/internal/domain/statement"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Format
	}{
		{
			"revolut by bank name",
			"Revolut Bank UAB account statement for January",
			FormatRevolut,
		},
		{
			"bulbank by bank name",
			"УНИКРЕДИТ БУЛБАНК АД извлечение по сметка",
			FormatBulbank,
		},
		{
			// The bank-name marker outranks generic debit/credit headers.
			"bank name beats generic headers",
			"Revolut statement Дт Кт",
			FormatRevolut,
		},
		{
			"generic debit credit codes",
			"Дата Описание Дт Кт Салдо",
			FormatBulbank,
		},
		{
			"paired amounts",
			"05.01.2024 плащане 19.17 BGN (9.80 EUR)",
			FormatBulbank,
		},
		{
			"generic money columns",
			"Date Description Money out Money in Balance",
			FormatRevolut,
		},
		{
			"plain table falls back to tabular",
			"Date,Description,Amount\n2024-01-05,GROCERY,-12.50",
			FormatTabularCSV,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Detect(tc.text))
		})
	}
}

func TestForFormat(t *testing.T) {
	s, ok := ForFormat(FormatRevolut)
	require.True(t, ok)
	assert.Equal(t, "revolut", s.Name())

	s, ok = ForFormat(FormatBulbank)
	require.True(t, ok)
	assert.Equal(t, "bulbank", s.Name())

	_, ok = ForFormat(FormatTabularCSV)
	assert.False(t, ok)
}

const revolutFixture = `Revolut Bank UAB
Account transactions from Jan 1, 2024 to Jan 31, 2024

Jan 5, 2024 Transfer from Jane Doe €120.00 €1,540.00
Jan 7, 2024 Payment to Coffee House
Sofia center branch €4.50 €1,535.50
Page 1
Balance summary
`

func TestRevolutScanner_Scan(t *testing.T) {
	drafts, err := (&RevolutScanner{}).Scan(revolutFixture)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), drafts[0].Date)
	assert.Equal(t, int64(12000), drafts[0].AmountCents)
	assert.Equal(t, statement.DirectionIncome, drafts[0].Direction)
	assert.Equal(t, "Transfer from Jane Doe", drafts[0].Description)

	// The wrapped entry is reassembled from its continuation line and the
	// balance column does not leak into the amount.
	assert.Equal(t, int64(450), drafts[1].AmountCents)
	assert.Equal(t, statement.DirectionExpense, drafts[1].Direction)
	assert.Contains(t, drafts[1].Description, "Coffee House")
	assert.Contains(t, drafts[1].Description, "Sofia center branch")
}

const bulbankFixture = `УНИКРЕДИТ БУЛБАНК АД
Извлечение по сметка BG80BNBG96611020345678

05.01.2024 ПЛАЩАНЕ ПОС KAUFLAND СОФИЯ Дт 19.17 BGN (9.80 EUR)
06.01.2024 ПРЕВОД ОТ ИВАН ПЕТРОВ Кт 97.79 BGN (50.00 EUR)
07.01.2024 ТАКСА ОБСЛУЖВАНЕ Дт 0.00 BGN (0.00 EUR)
Крайно салдо 1 234.56 BGN
`

func TestBulbankScanner_Scan(t *testing.T) {
	drafts, err := (&BulbankScanner{}).Scan(bulbankFixture)
	require.NoError(t, err)
	// The zero-amount fee line is not a transaction.
	require.Len(t, drafts, 2)

	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), drafts[0].Date)
	assert.Equal(t, int64(980), drafts[0].AmountCents)
	assert.Equal(t, statement.DirectionExpense, drafts[0].Direction)
	assert.Equal(t, "ПЛАЩАНЕ ПОС KAUFLAND СОФИЯ", drafts[0].Description)

	assert.Equal(t, int64(5000), drafts[1].AmountCents)
	assert.Equal(t, statement.DirectionIncome, drafts[1].Direction)
	assert.Equal(t, "ПРЕВОД ОТ ИВАН ПЕТРОВ", drafts[1].Description)
}

func TestScan_TooShort(t *testing.T) {
	_, err := (&RevolutScanner{}).Scan("Revolut")
	assert.ErrorIs(t, err, statement.ErrTextTooShort)
}

func TestScan_NoTransactions(t *testing.T) {
	text := `Извлечение по сметка BG80BNBG96611020345678
Няма движения по сметката за избрания период.
`
	_, err := (&BulbankScanner{}).Scan(text)
	assert.ErrorIs(t, err, statement.ErrNoTransactionsFound)
}
