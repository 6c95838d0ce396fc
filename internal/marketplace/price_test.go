package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePriceEncodings(t *testing.T) {
	want := "1999.9"

	cases := []string{
		"1999.90",
		"1 999,90 ₽",
		"1 999,90 ₽",
		"1 999,90",
		"1 999.90 руб",
		"1 999.90 руб",
	}
	for _, input := range cases {
		got := NormalizePrice(input)
		require.NotNil(t, got, "input %q", input)
		assert.Equal(t, want, got.String(), "input %q", input)
	}
}

func TestNormalizePriceNoDigits(t *testing.T) {
	assert.Nil(t, NormalizePrice(""))
	assert.Nil(t, NormalizePrice("цена по запросу"))
	assert.Nil(t, NormalizePrice("₽"))
}

func TestNormalizePriceNonPositive(t *testing.T) {
	assert.Nil(t, NormalizePrice("0"))
	assert.Nil(t, NormalizePrice("0,00 ₽"))
}

func TestNormalizePriceFirstToken(t *testing.T) {
	got := NormalizePrice("149,99 ₽ вместо 199,99 ₽")
	require.NotNil(t, got)
	assert.Equal(t, "149.99", got.String())
}

func TestNormalizePriceRounding(t *testing.T) {
	got := NormalizePrice("10.999")
	require.NotNil(t, got)
	assert.Equal(t, "11", got.String())
}
