package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"pricesentry/helpers"
	"pricesentry/internal/metrics"
	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
	"pricesentry/services/cache"
)

const (
	wbDefaultHost    = "www.wildberries.ru"
	wbDefaultAPIBase = "https://card.wb.ru"
	wbCooldownKey    = "wb_cooldown"
	wbCooldownTTL    = 500 * time.Second
)

var wbArticlePattern = regexp.MustCompile(`/catalog/(\d+)/`)

// wbCardResponse is the decoded shape of the card API payload. Prices arrive
// in kopecks.
type wbCardResponse struct {
	Data struct {
		Products []struct {
			Name       string `json:"name"`
			PriceU     int64  `json:"priceU"`
			SalePriceU int64  `json:"salePriceU"`
		} `json:"products"`
	} `json:"data"`
}

// WildberriesClient fetches product snapshots from the public card API over
// plain HTTP; no browser session is needed for this marketplace.
type WildberriesClient struct {
	cache      cache.CacheService
	host       string
	apiBase    string
	retries    int
	retryDelay time.Duration
	log        *logger.Logger
}

// NewWildberriesClient creates a Wildberries fetch client serving the given
// canonical host
func NewWildberriesClient(cacheSvc cache.CacheService, host string, retries int, retryDelay time.Duration) *WildberriesClient {
	if host == "" {
		host = wbDefaultHost
	}
	if retryDelay <= 0 {
		retryDelay = 1200 * time.Millisecond
	}
	return &WildberriesClient{
		cache:      cacheSvc,
		host:       host,
		apiBase:    wbDefaultAPIBase,
		retries:    retries,
		retryDelay: retryDelay,
		log:        logger.ForMarketplace(string(Wildberries)),
	}
}

// Marketplace returns the source this client serves
func (c *WildberriesClient) Marketplace() Marketplace {
	return Wildberries
}

// Fetch retrieves a snapshot from the card API, retrying with a fixed delay
// and raising a blocked error after exhausting the budget
func (c *WildberriesClient) Fetch(ctx context.Context, rawURL string) (*ProductSnapshot, error) {
	if !urlMatches(rawURL, []string{hostSuffix(c.host), "wb.ru"}) {
		return nil, errs.NewInvalidInput(string(Wildberries), "not a Wildberries product URL")
	}

	article, err := extractWBArticle(rawURL)
	if err != nil {
		return nil, errs.NewInvalidInput(string(Wildberries), "no article number in URL")
	}

	if cache.Marked(c.cache, wbCooldownKey) {
		metrics.MarketplaceRequests.WithLabelValues(string(Wildberries), "blocked").Inc()
		return nil, errs.NewBlocked(string(Wildberries), "cooldown active after rate limit", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		snapshot, err := c.fetchOnce(ctx, rawURL, article)
		if err == nil {
			metrics.MarketplaceRequests.WithLabelValues(string(Wildberries), "success").Inc()
			return snapshot, nil
		}

		lastErr = err
		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.retries+1).
			Str("url", helpers.TruncateURL(rawURL)).
			Msg("Fetch attempt failed")

		var rl *helpers.ErrRateLimited
		if errors.As(err, &rl) {
			if c.cache != nil {
				if merr := cache.Mark(c.cache, wbCooldownKey, wbCooldownTTL); merr != nil {
					c.log.Warn().Err(merr).Msg("Cooldown mark failed")
				}
			}
			break
		}

		if attempt < c.retries {
			select {
			case <-ctx.Done():
				return nil, errs.NewBlocked(string(Wildberries), "fetch cancelled", ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
	}

	metrics.MarketplaceRequests.WithLabelValues(string(Wildberries), "blocked").Inc()
	return nil, errs.NewBlocked(string(Wildberries), "all fetch attempts failed", lastErr)
}

func (c *WildberriesClient) fetchOnce(ctx context.Context, rawURL, article string) (*ProductSnapshot, error) {
	endpoint := fmt.Sprintf("%s/cards/v1/detail?appType=1&curr=rub&dest=-1257786&nm=%s", c.apiBase, article)

	data, err := helpers.FetchJSON(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var card wbCardResponse
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, errs.NewParsing(string(Wildberries), "card payload undecodable", err)
	}
	if len(card.Data.Products) == 0 {
		return nil, errs.NewParsing(string(Wildberries), "card payload has no products", nil)
	}

	product := card.Data.Products[0]
	snapshot := &ProductSnapshot{
		Title:           strings.TrimSpace(product.Name),
		DiscountedPrice: kopecksToPrice(product.SalePriceU),
		StandardPrice:   kopecksToPrice(product.PriceU),
	}

	if snapshot.Title == "" {
		snapshot.Title = c.titleFromPage(ctx, rawURL)
	}

	return snapshot, nil
}

// titleFromPage scrapes the product page head title as a last resort
func (c *WildberriesClient) titleFromPage(ctx context.Context, rawURL string) string {
	reader, err := helpers.FetchHTML(ctx, rawURL)
	if err != nil {
		c.log.Debug().Err(err).Msg("Title page fetch failed")
		return PlaceholderTitle
	}
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return PlaceholderTitle
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return PlaceholderTitle
	}
	return title
}

// kopecksToPrice converts a kopeck amount to a rounded ruble decimal
func kopecksToPrice(kopecks int64) *decimal.Decimal {
	if kopecks <= 0 {
		return nil
	}
	price := decimal.New(kopecks, -2).Round(2)
	return &price
}

// extractWBArticle pulls the numeric article id out of a catalog URL
func extractWBArticle(rawURL string) (string, error) {
	m := wbArticlePattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("no article number in %q", helpers.TruncateURL(rawURL))
	}
	return m[1], nil
}
