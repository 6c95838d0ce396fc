package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricesentry/internal/marketplace"
	"pricesentry/services/store"
)

// fakeStore is an in-memory Store keeping canonical item state across runs
type fakeStore struct {
	mu           sync.Mutex
	items        map[int64]*store.TrackedItem
	observations map[int64][]store.PriceObservation
	listErr      error
	nextObsID    int64
}

func newFakeStore(items ...store.TrackedItem) *fakeStore {
	s := &fakeStore{
		items:        make(map[int64]*store.TrackedItem),
		observations: make(map[int64][]store.PriceObservation),
	}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
	}
	return s
}

func (s *fakeStore) CreateItem(ctx context.Context, item store.TrackedItem) (int64, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeStore) GetItem(ctx context.Context, id int64) (*store.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (s *fakeStore) ListActiveItems(ctx context.Context) ([]store.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var items []store.TrackedItem
	for id := int64(1); id <= int64(len(s.items)); id++ {
		if item, ok := s.items[id]; ok && item.Active {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (s *fakeStore) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	return 0, errors.New("not implemented")
}

func (s *fakeStore) UpdateTargetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return errors.New("not implemented")
}

func (s *fakeStore) DeleteItem(ctx context.Context, id int64) error {
	return errors.New("not implemented")
}

func (s *fakeStore) AppendObservation(ctx context.Context, itemID int64, price decimal.Decimal, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextObsID++
	s.observations[itemID] = append(s.observations[itemID], store.PriceObservation{
		ID: s.nextObsID, ItemID: itemID, Price: price, ObservedAt: time.Now(), Source: source,
	})
	return nil
}

func (s *fakeStore) LatestObservation(ctx context.Context, itemID int64) (*store.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs := s.observations[itemID]
	if len(obs) == 0 {
		return nil, nil
	}
	last := obs[len(obs)-1]
	return &last, nil
}

func (s *fakeStore) SetCurrentPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].CurrentPrice = &price
	return nil
}

func (s *fakeStore) SetNotificationState(ctx context.Context, id int64, state string, lastNotified *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id].LastState = state
	s.items[id].LastNotifiedPrice = lastNotified
	return nil
}

func (s *fakeStore) Close() error { return nil }

// sentEvent records one notification delivered to the fake notifier
type sentEvent struct {
	kind   string
	itemID int64
	price  decimal.Decimal
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (n *fakeNotifier) DealReached(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error {
	return n.record("deal_reached", item, price)
}

func (n *fakeNotifier) DealEnded(ctx context.Context, item store.TrackedItem, price decimal.Decimal) error {
	return n.record("deal_ended", item, price)
}

func (n *fakeNotifier) record(kind string, item store.TrackedItem, price decimal.Decimal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, sentEvent{kind: kind, itemID: item.ID, price: price})
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

// fakeClient returns scripted snapshots, advancing on each Fetch call
type fakeClient struct {
	mu        sync.Mutex
	snapshots []*marketplace.ProductSnapshot
	errs      []error
	calls     int
	block     chan struct{}
}

func (c *fakeClient) Fetch(ctx context.Context, rawURL string) (*marketplace.ProductSnapshot, error) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return nil, c.errs[i]
	}
	if i >= len(c.snapshots) {
		i = len(c.snapshots) - 1
	}
	return c.snapshots[i], nil
}

func (c *fakeClient) Marketplace() marketplace.Marketplace { return marketplace.Ozon }

// fakeResolver maps URLs to scripted clients
type fakeResolver struct {
	clients map[string]marketplace.Client
}

func (r *fakeResolver) For(rawURL string) (marketplace.Client, error) {
	client, ok := r.clients[rawURL]
	if !ok {
		return nil, errors.New("unsupported url")
	}
	return client, nil
}

func snap(price string) *marketplace.ProductSnapshot {
	p := decimal.RequireFromString(price)
	return &marketplace.ProductSnapshot{Title: "X", DiscountedPrice: &p}
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testItem(id int64, url, target string) store.TrackedItem {
	return store.TrackedItem{
		ID: id, OwnerID: 1, SourceURL: url, Title: "X",
		TargetPrice: d(target), Active: true,
	}
}

func TestRunOnceNotifiesOnThresholdCrossing(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{
		snap("150"), snap("150"), snap("95"), snap("95"), snap("130"), snap("130"),
	}}
	n := &fakeNotifier{}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, n)

	for i := 0; i < 6; i++ {
		stats := s.RunOnce(context.Background())
		assert.Equal(t, RunCompleted, stats.Status)
		assert.Equal(t, 1, stats.Checked)
		assert.Equal(t, 0, stats.Errors)
	}

	// Crossing below fires once, crossing back above fires once. Repeated
	// prices on the same side stay silent.
	require.Len(t, n.events, 2)
	assert.Equal(t, "deal_reached", n.events[0].kind)
	assert.True(t, n.events[0].price.Equal(d("95")))
	assert.Equal(t, "deal_ended", n.events[1].kind)
	assert.True(t, n.events[1].price.Equal(d("130")))

	item, err := st.GetItem(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.StateAbove, item.LastState)
	assert.Nil(t, item.LastNotifiedPrice)
	require.NotNil(t, item.CurrentPrice)
	assert.True(t, item.CurrentPrice.Equal(d("130")))
}

func TestRunOnceEqualPriceCountsAsReached(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{snap("100")}}
	n := &fakeNotifier{}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, n)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Notified)
	require.Len(t, n.events, 1)
	assert.Equal(t, "deal_reached", n.events[0].kind)
}

func TestRunOnceItemFailureDoesNotAffectOthers(t *testing.T) {
	urlA := "https://www.ozon.ru/product/a-1/"
	urlB := "https://www.ozon.ru/product/b-2/"
	st := newFakeStore(testItem(1, urlA, "100"), testItem(2, urlB, "100"))
	clients := map[string]marketplace.Client{
		urlA: &fakeClient{errs: []error{errors.New("fetch failed")}},
		urlB: &fakeClient{snapshots: []*marketplace.ProductSnapshot{snap("120")}},
	}
	n := &fakeNotifier{}
	s := NewScheduler(st, &fakeResolver{clients: clients}, n)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, RunCompleted, stats.Status)
	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.Errors)

	itemA, _ := st.GetItem(context.Background(), 1)
	assert.Nil(t, itemA.CurrentPrice)
	itemB, _ := st.GetItem(context.Background(), 2)
	require.NotNil(t, itemB.CurrentPrice)
	assert.True(t, itemB.CurrentPrice.Equal(d("120")))
}

func TestRunOnceRecordsObservation(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{snap("95")}}
	n := &fakeNotifier{}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, n)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Notified)

	obs, err := st.LatestObservation(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.True(t, obs.Price.Equal(d("95")))
	assert.Equal(t, store.SourceScheduled, obs.Source)

	item, _ := st.GetItem(context.Background(), 1)
	assert.Equal(t, store.StateBelow, item.LastState)
	require.NotNil(t, item.LastNotifiedPrice)
	assert.True(t, item.LastNotifiedPrice.Equal(d("95")))
}

func TestRunOnceSnapshotWithoutPriceIsError(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{
		{Title: "X"},
	}}
	n := &fakeNotifier{}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, n)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 1, stats.Errors)
	assert.Empty(t, n.events)

	obs, err := st.LatestObservation(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, obs)
}

func TestRunOnceNotificationFailureLeavesStateUntouched(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{snap("95")}}
	n := &fakeNotifier{err: errors.New("stream down")}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, n)

	stats := s.RunOnce(context.Background())
	assert.Equal(t, 0, stats.Notified)
	assert.Equal(t, 0, stats.Errors)

	item, _ := st.GetItem(context.Background(), 1)
	assert.Equal(t, store.StateNone, item.LastState)

	// Delivery recovers; the next run fires the pending notification.
	n.err = nil
	s.RunOnce(context.Background())
	require.Len(t, n.events, 1)
	assert.Equal(t, "deal_reached", n.events[0].kind)
}

func TestRunOnceListFailure(t *testing.T) {
	st := newFakeStore()
	st.listErr = errors.New("database locked")
	s := NewScheduler(st, &fakeResolver{}, &fakeNotifier{})

	stats := s.RunOnce(context.Background())
	assert.Equal(t, RunFailed, stats.Status)
	assert.Equal(t, 0, stats.Checked)
}

func TestRunOnceSkipsWhenRunInProgress(t *testing.T) {
	url := "https://www.ozon.ru/product/x-1/"
	st := newFakeStore(testItem(1, url, "100"))
	block := make(chan struct{})
	client := &fakeClient{snapshots: []*marketplace.ProductSnapshot{snap("95")}, block: block}
	s := NewScheduler(st, &fakeResolver{clients: map[string]marketplace.Client{url: client}}, &fakeNotifier{})

	done := make(chan RunStats, 1)
	go func() {
		done <- s.RunOnce(context.Background())
	}()

	// Wait for the first run to enter the blocking fetch.
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	skipped := s.RunOnce(context.Background())
	assert.Equal(t, RunSkipped, skipped.Status)

	close(block)
	stats := <-done
	assert.Equal(t, RunCompleted, stats.Status)
}

func TestCronSpec(t *testing.T) {
	assert.Equal(t, "0 9,15,21 * * *", cronSpec([]int{9, 15, 21}))
	assert.Equal(t, "0 6 * * *", cronSpec([]int{6}))
}
