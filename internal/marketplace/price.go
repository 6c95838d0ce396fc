package marketplace

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// spaceStripper removes regular and Unicode thousand-separator spaces
var spaceStripper = strings.NewReplacer(
	" ", "", // no-break space
	" ", "", // narrow no-break space
	" ", "", // thin space
	" ", "",
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// NormalizePrice converts locale-formatted price text into a decimal rounded
// to two places. It returns nil when no positive numeric token is found;
// callers treat nil as "price not extracted", not as an error.
func NormalizePrice(text string) *decimal.Decimal {
	if text == "" {
		return nil
	}

	cleaned := spaceStripper.Replace(text)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	cleaned = strings.ReplaceAll(cleaned, "₽", "")

	token := numberPattern.FindString(cleaned)
	if token == "" {
		return nil
	}

	value, err := decimal.NewFromString(token)
	if err != nil {
		return nil
	}
	if value.Sign() <= 0 {
		return nil
	}

	rounded := value.Round(2)
	return &rounded
}
