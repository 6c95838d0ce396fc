package marketplace

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Widget key fragments marking price- and title-bearing entries in the
// page-data payload.
var (
	priceWidgetKeys = []string{"webprice", "webproductprices", "websale"}
	titleWidgetKeys = []string{"webproductheading"}
)

// rublePattern matches currency-suffixed numeric tokens in raw payload text,
// thousand groups separated by regular or Unicode spaces included.
var rublePattern = regexp.MustCompile(`(\d[\d\s\x{00A0}\x{2009}\x{202F}]*)\s*₽`)

// pagePayload is the decoded shape of a marketplace page-data response
type pagePayload struct {
	raw          []byte
	WidgetStates map[string]string `json:"widgetStates"`
	SEO          struct {
		Title string `json:"title"`
	} `json:"seo"`
}

func decodePayload(data []byte) (*pagePayload, error) {
	p := &pagePayload{raw: data}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, err
	}
	return p, nil
}

// widgets decodes every widget state whose key contains one of the given
// fragments (case-insensitive), in sorted key order so the first-found-wins
// tie-break stays deterministic. Undecodable widgets are skipped.
func (p *pagePayload) widgets(keyFragments []string) []map[string]any {
	keys := make([]string, 0, len(p.WidgetStates))
	for key := range p.WidgetStates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []map[string]any
	for _, key := range keys {
		low := strings.ToLower(key)
		matched := false
		for _, frag := range keyFragments {
			if strings.Contains(low, frag) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(p.WidgetStates[key]), &obj); err != nil {
			continue
		}
		out = append(out, obj)
	}
	return out
}

// titleStrategy is one independently testable way to extract a title
type titleStrategy func(*pagePayload) string

// titleStrategies are tried in order; the first non-empty result wins
var titleStrategies = []titleStrategy{
	widgetHeadingTitle,
	seoTitle,
	nestedProductTitle,
}

// ExtractTitle runs the ordered title strategies, falling back to a literal
// placeholder so a missing title never fails a fetch.
func ExtractTitle(p *pagePayload) string {
	for _, strategy := range titleStrategies {
		if title := strategy(p); title != "" {
			return title
		}
	}
	return PlaceholderTitle
}

func widgetHeadingTitle(p *pagePayload) string {
	for _, obj := range p.widgets(titleWidgetKeys) {
		if t, ok := obj["title"].(string); ok && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

func seoTitle(p *pagePayload) string {
	return strings.TrimSpace(p.SEO.Title)
}

func nestedProductTitle(p *pagePayload) string {
	for _, obj := range p.widgets(priceWidgetKeys) {
		if t := strings.TrimSpace(productField(obj, "title")); t != "" {
			return t
		}
	}
	return ""
}

// productField digs into cellTrackingInfo.product or product for a field that
// may arrive as a string or a number
func productField(obj map[string]any, field string) string {
	if cti, ok := obj["cellTrackingInfo"].(map[string]any); ok {
		if product, ok := cti["product"].(map[string]any); ok {
			if v := stringField(product, field); v != "" {
				return v
			}
		}
	}
	if product, ok := obj["product"].(map[string]any); ok {
		if v := stringField(product, field); v != "" {
			return v
		}
	}
	return ""
}

// priceCandidate tracks one extracted price and whether the offer carrying it
// was marked available
type priceCandidate struct {
	value     *decimal.Decimal
	available bool
}

// replaceWith applies the deterministic tie-break: an available candidate
// always replaces an unavailable one; among equals the first found wins.
func (c *priceCandidate) replaceWith(value *decimal.Decimal, available bool) {
	if value == nil {
		return
	}
	if c.value == nil || (!c.available && available) {
		c.value = value
		c.available = available
	}
}

// ExtractPrices scans the payload for discounted and standard prices.
// Structured price widgets are preferred; when they yield nothing, the raw
// payload text is scanned for currency-suffixed tokens.
func ExtractPrices(p *pagePayload) (discounted, standard *decimal.Decimal) {
	discounted, standard = structuredPrices(p)
	if discounted == nil && standard == nil {
		discounted, standard = rawScanPrices(p.raw)
	}
	return discounted, standard
}

func structuredPrices(p *pagePayload) (*decimal.Decimal, *decimal.Decimal) {
	var disc, std priceCandidate

	for _, obj := range p.widgets(priceWidgetKeys) {
		available := true
		if v, ok := obj["isAvailable"].(bool); ok {
			available = v
		}

		discRaw := stringField(obj, "cardPrice")
		stdRaw := stringField(obj, "price")
		if discRaw == "" && stdRaw == "" {
			discRaw = firstNonEmpty(productField(obj, "cardPrice"), productField(obj, "finalPrice"))
			stdRaw = firstNonEmpty(productField(obj, "price"), productField(obj, "originalPrice"))
		}

		disc.replaceWith(NormalizePrice(discRaw), available)
		std.replaceWith(NormalizePrice(stdRaw), available)

		if disc.value != nil && disc.available && std.value != nil && std.available {
			break
		}
	}

	return disc.value, std.value
}

// rawScanPrices takes the first two distinct currency-suffixed tokens as
// discounted/standard candidates
func rawScanPrices(raw []byte) (*decimal.Decimal, *decimal.Decimal) {
	var found []*decimal.Decimal
	for _, match := range rublePattern.FindAllSubmatch(raw, -1) {
		price := NormalizePrice(string(match[1]))
		if price == nil {
			continue
		}
		distinct := true
		for _, seen := range found {
			if seen.Equal(*price) {
				distinct = false
				break
			}
		}
		if !distinct {
			continue
		}
		found = append(found, price)
		if len(found) == 2 {
			break
		}
	}

	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return found[0], found[1]
	}
}

// stringField reads a field that may arrive as a JSON string or number
func stringField(obj map[string]any, field string) string {
	switch v := obj[field].(type) {
	case string:
		return v
	case float64:
		d := decimal.NewFromFloat(v)
		return d.String()
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
