package marketplace

import (
	"time"

	errs "pricesentry/pkg/errors"
	"pricesentry/services/cache"
)

// Resolver selects the fetch client responsible for a URL
type Resolver interface {
	// For returns the client serving the marketplace the URL belongs to
	For(rawURL string) (Client, error)
}

// Hosts carries the externally configured canonical marketplace hosts
type Hosts struct {
	Ozon        string
	Wildberries string
}

func (h *Hosts) defaults() {
	if h.Ozon == "" {
		h.Ozon = "www.ozon.ru"
	}
	if h.Wildberries == "" {
		h.Wildberries = "www.wildberries.ru"
	}
}

// Registry holds one client per supported marketplace. Adding a marketplace
// means adding one client variant and one pattern entry here.
type Registry struct {
	clients  map[Marketplace]Client
	patterns map[Marketplace][]string
}

var _ Resolver = (*Registry)(nil)

// NewRegistry creates all marketplace clients from the shared dependencies
// and the configured hosts
func NewRegistry(session PageSession, cacheSvc cache.CacheService, hosts Hosts, retries int, retryDelay time.Duration) *Registry {
	hosts.defaults()
	return &Registry{
		clients: map[Marketplace]Client{
			Ozon:        NewOzonClient(session, cacheSvc, hosts.Ozon, retries, retryDelay),
			Wildberries: NewWildberriesClient(cacheSvc, hosts.Wildberries, retries, retryDelay),
		},
		patterns: map[Marketplace][]string{
			Ozon: {hostSuffix(hosts.Ozon)},
			// wb.ru is the marketplace's short-domain alias
			Wildberries: {hostSuffix(hosts.Wildberries), "wb.ru"},
		},
	}
}

// For detects the marketplace and returns its client
func (r *Registry) For(rawURL string) (Client, error) {
	m, err := detect(rawURL, r.patterns)
	if err != nil {
		return nil, err
	}
	client, ok := r.clients[m]
	if !ok {
		return nil, errs.NewInvalidInput(string(m), "no client registered for marketplace")
	}
	return client, nil
}
