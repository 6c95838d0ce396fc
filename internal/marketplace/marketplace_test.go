package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
)

func testLogger() *logger.Logger {
	return logger.ForMarketplace("test")
}

func TestDetect(t *testing.T) {
	cases := map[string]Marketplace{
		"https://www.ozon.ru/product/chainik-123/":           Ozon,
		"https://ozon.ru/product/chainik-123/":               Ozon,
		"http://m.ozon.ru/product/x":                         Ozon,
		"https://www.wildberries.ru/catalog/12345/detail.aspx": Wildberries,
		"https://wb.ru/catalog/12345/detail.aspx":            Wildberries,
	}
	for rawURL, want := range cases {
		got, err := Detect(rawURL)
		require.NoError(t, err, "url %q", rawURL)
		assert.Equal(t, want, got, "url %q", rawURL)
	}
}

func TestDetectUnsupported(t *testing.T) {
	for _, rawURL := range []string{
		"https://example.com/product/1",
		"https://notozon.ru/product/1",
		"ftp://www.ozon.ru/product/1",
		"not a url at all",
		"",
	} {
		_, err := Detect(rawURL)
		require.Error(t, err, "url %q", rawURL)
		assert.True(t, errs.IsInvalidInput(err), "url %q", rawURL)
	}
}

func TestComparePrice(t *testing.T) {
	disc := NormalizePrice("95")
	std := NormalizePrice("150")

	both := &ProductSnapshot{DiscountedPrice: disc, StandardPrice: std}
	assert.Equal(t, "95", both.ComparePrice().String())

	onlyStd := &ProductSnapshot{StandardPrice: std}
	assert.Equal(t, "150", onlyStd.ComparePrice().String())

	empty := &ProductSnapshot{}
	assert.Nil(t, empty.ComparePrice())
}
