package marketplace

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pricesentry/helpers"
	"pricesentry/internal/metrics"
	"pricesentry/logger"
	errs "pricesentry/pkg/errors"
	"pricesentry/services/cache"
)

const (
	ozonDefaultHost = "www.ozon.ru"
	ozonCooldownKey = "ozon_cooldown"
	ozonCooldownTTL = 500 * time.Second
)

// ozonHeaders are sent with every page-data request
var ozonHeaders = map[string]string{
	"Accept":           "application/json",
	"Referer":          "https://www.ozon.ru/",
	"X-O3-App-Name":    "dweb_client",
	"X-O3-App-Version": "1.0.0",
}

// OzonClient fetches product snapshots through the anti-bot browser session.
// It is stateless per call beyond the shared session.
type OzonClient struct {
	session    PageSession
	cache      cache.CacheService
	host       string
	retries    int
	retryDelay time.Duration
	log        *logger.Logger
}

// NewOzonClient creates an Ozon fetch client serving the given canonical host
func NewOzonClient(session PageSession, cacheSvc cache.CacheService, host string, retries int, retryDelay time.Duration) *OzonClient {
	if host == "" {
		host = ozonDefaultHost
	}
	if retryDelay <= 0 {
		retryDelay = 1200 * time.Millisecond
	}
	return &OzonClient{
		session:    session,
		cache:      cacheSvc,
		host:       host,
		retries:    retries,
		retryDelay: retryDelay,
		log:        logger.ForMarketplace(string(Ozon)),
	}
}

// Marketplace returns the source this client serves
func (c *OzonClient) Marketplace() Marketplace {
	return Ozon
}

// Fetch validates and canonicalizes the URL, then runs the fetch attempt up
// to retries+1 times with a fixed delay in between. Exhausting the budget
// raises a blocked error; a payload without prices is a partial snapshot,
// not an error.
func (c *OzonClient) Fetch(ctx context.Context, rawURL string) (*ProductSnapshot, error) {
	if !urlMatches(rawURL, []string{hostSuffix(c.host)}) {
		return nil, errs.NewInvalidInput(string(Ozon), "not an Ozon product URL")
	}

	canonical, err := canonicalOzonURL(rawURL, c.host)
	if err != nil {
		return nil, errs.NewInvalidInput(string(Ozon), "malformed Ozon URL")
	}

	if cache.Marked(c.cache, ozonCooldownKey) {
		metrics.MarketplaceRequests.WithLabelValues(string(Ozon), "blocked").Inc()
		return nil, errs.NewBlocked(string(Ozon), "cooldown active after rate limit", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		snapshot, err := c.fetchOnce(ctx, canonical)
		if err == nil {
			metrics.MarketplaceRequests.WithLabelValues(string(Ozon), "success").Inc()
			c.log.Info().
				Str("url", helpers.TruncateURL(canonical)).
				Str("title", snapshot.Title).
				Msg("Product fetched")
			return snapshot, nil
		}

		lastErr = err
		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", c.retries+1).
			Str("url", helpers.TruncateURL(canonical)).
			Msg("Fetch attempt failed")

		if attempt < c.retries {
			// A broken session is torn down so the next attempt relaunches it.
			var fe *errs.FetchError
			if stderrors.As(err, &fe) && fe.IsRetryable() {
				c.session.Reset()
			}
			select {
			case <-ctx.Done():
				return nil, errs.NewBlocked(string(Ozon), "fetch cancelled", ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
	}

	metrics.MarketplaceRequests.WithLabelValues(string(Ozon), "blocked").Inc()
	return nil, errs.NewBlocked(string(Ozon), "all fetch attempts failed", lastErr)
}

// fetchOnce is a single attempt: ensure the session, hit the page-data
// endpoint, and on an empty payload run exactly one challenge-refresh before
// re-requesting within the same attempt.
func (c *OzonClient) fetchOnce(ctx context.Context, canonical string) (*ProductSnapshot, error) {
	if err := c.session.EnsureStarted(ctx); err != nil {
		return nil, err
	}

	endpoint := composerURL(canonical, c.host)

	data, err := c.session.FetchJSON(ctx, endpoint, ozonHeaders)
	if err != nil && strings.Contains(err.Error(), "status 429") {
		if c.cache != nil {
			if merr := cache.Mark(c.cache, ozonCooldownKey, ozonCooldownTTL); merr != nil {
				c.log.Warn().Err(merr).Msg("Cooldown mark failed")
			}
		}
		return nil, errs.NewBlocked(string(Ozon), "rate limited by marketplace", err)
	}
	if err != nil || len(data) == 0 {
		c.log.Debug().Str("url", helpers.TruncateURL(canonical)).Msg("Empty payload, forcing challenge refresh")
		if c.session.SolveChallenge(ctx) {
			if perr := c.session.PersistCookies(); perr != nil {
				c.log.Warn().Err(perr).Msg("Cookie persist failed")
			}
			data, err = c.session.FetchJSON(ctx, endpoint, ozonHeaders)
		}
		if err != nil {
			return nil, errs.NewParsing(string(Ozon), "page-data request failed", err)
		}
		if len(data) == 0 {
			return nil, errs.NewParsing(string(Ozon), "page-data payload empty", nil)
		}
	}

	payload, err := decodePayload(data)
	if err != nil {
		return nil, errs.NewParsing(string(Ozon), "page-data payload undecodable", err)
	}

	discounted, standard := ExtractPrices(payload)
	snapshot := &ProductSnapshot{
		Title:           ExtractTitle(payload),
		DiscountedPrice: discounted,
		StandardPrice:   standard,
	}
	if discounted == nil && standard == nil {
		c.log.Warn().
			Str("url", helpers.TruncateURL(canonical)).
			Str("title", snapshot.Title).
			Msg("No prices extracted from payload")
	}
	return snapshot, nil
}

// canonicalOzonURL collapses subdomain variants to the configured canonical
// host, preserving path and query
func canonicalOzonURL(rawURL, canonicalHost string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	suffix := hostSuffix(canonicalHost)
	host := strings.ToLower(u.Hostname())
	if host == suffix || strings.HasSuffix(host, "."+suffix) {
		u.Host = canonicalHost
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Fragment = ""

	return u.String(), nil
}

// composerURL builds the page-data endpoint for a canonical product URL
func composerURL(canonical, canonicalHost string) string {
	u, err := url.Parse(canonical)
	if err != nil {
		return canonical
	}
	relative := u.Path
	if relative == "" {
		relative = "/"
	}
	if u.RawQuery != "" {
		relative += "?" + u.RawQuery
	}
	return fmt.Sprintf(
		"https://%s/api/composer-api.bx/page/json/v2?url=%s",
		canonicalHost,
		url.QueryEscape(relative),
	)
}
