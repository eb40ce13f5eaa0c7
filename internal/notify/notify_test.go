package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/webstore/internal/domain/auth"
	"github.com/xenking/webstore/internal/domain/catalog"
	"github.com/xenking/webstore/internal/domain/order"
)

type mockCatalog struct {
	products map[string]*catalog.Product
	packages map[string]*catalog.Package
}

func (m *mockCatalog) ListProducts(context.Context) ([]catalog.Product, error) { return nil, nil }
func (m *mockCatalog) ListPackages(context.Context) ([]catalog.Package, error) { return nil, nil }

func (m *mockCatalog) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (m *mockCatalog) GetPackage(_ context.Context, id string) (*catalog.Package, error) {
	p, ok := m.packages[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

type mockUsers struct {
	users map[string]*auth.User
}

func (m *mockUsers) FindByAPIKeyHash(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrUserNotFound
}

func (m *mockUsers) Get(_ context.Context, id string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUsers) AppendOrder(context.Context, string, string) error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
	closed bool
}

func (s *recordingSink) Send(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func newBuilder() *Builder {
	cat := &mockCatalog{
		products: map[string]*catalog.Product{
			"a": {ID: "a", Name: "Gauze"},
			"b": {ID: "b", Name: "Bandage"},
		},
		packages: map[string]*catalog.Package{
			"k": {ID: "k", Name: "Kit", IncludedProducts: []string{"a", "gone", "b"}},
		},
	}
	users := &mockUsers{users: map[string]*auth.User{
		"u1": {
			ID: "u1", FirstName: "Mona", LastName: "Adel", Email: "mona@example.com",
			Phone: "0100", Governorate: "Giza", City: "Dokki", Address: "1 Nile St",
		},
	}}
	return NewBuilder(cat, users)
}

func testOrder(customer order.Customer) *order.Order {
	return &order.Order{
		ID:       "o1",
		Customer: customer,
		Items: []order.Item{
			{Ref: catalog.ProductRef("a"), Name: "Gauze", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
			{Ref: catalog.PackageRef("k"), Name: "Kit", Quantity: 1, UnitPrice: decimal.RequireFromString("40")},
		},
		Subtotal:    decimal.RequireFromString("60"),
		TotalAmount: decimal.RequireFromString("30"),
		Coupon:      &order.AppliedCoupon{Code: "HALF", DiscountAmount: decimal.RequireFromString("30")},
		Status:      order.StatusPending,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBuild_Registered(t *testing.T) {
	ev, err := newBuilder().Build(context.Background(), testOrder(order.Registered("u1")))
	require.NoError(t, err)

	assert.Equal(t, "o1", ev.OrderID)
	assert.Equal(t, "Mona Adel", ev.Customer.Name)
	assert.Equal(t, "mona@example.com", ev.Customer.Email)
	assert.Equal(t, "1 Nile St, Dokki, Giza", ev.Customer.Address)
	assert.Equal(t, "HALF", ev.CouponCode)
	assert.True(t, ev.Discount.Equal(decimal.RequireFromString("30")))

	require.Len(t, ev.Items, 2)
	assert.Empty(t, ev.Items[0].Contents)
	assert.Equal(t, []string{"Gauze", "Bandage"}, ev.Items[1].Contents)
}

func TestBuild_Guest(t *testing.T) {
	info := order.GuestInfo{
		FirstName: "Omar", LastName: "Ali", Email: "omar@example.com", Phone: "0111",
		Governorate: "Cairo", City: "Maadi", Address: "9 Road",
	}
	o := testOrder(order.GuestCustomer(info))
	o.Coupon = nil

	ev, err := newBuilder().Build(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "guest", ev.Customer.Kind)
	assert.Equal(t, "Omar Ali", ev.Customer.Name)
	assert.Empty(t, ev.Customer.UserID)
	assert.Empty(t, ev.CouponCode)
}

func TestBuild_UnknownUser(t *testing.T) {
	_, err := newBuilder().Build(context.Background(), testOrder(order.Registered("nobody")))
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestEventEncode(t *testing.T) {
	ev, err := newBuilder().Build(context.Background(), testOrder(order.Registered("u1")))
	require.NoError(t, err)

	data, err := ev.MarshalJSON()
	require.NoError(t, err)

	var got struct {
		OrderID   string `json:"orderId"`
		CreatedAt string `json:"createdAt"`
		Customer  struct {
			UserID string `json:"userId"`
			Email  string `json:"email"`
		} `json:"customer"`
		Items []struct {
			Kind      string   `json:"kind"`
			Quantity  int      `json:"quantity"`
			UnitPrice string   `json:"unitPrice"`
			Contents  []string `json:"contents"`
		} `json:"items"`
		Total      string `json:"total"`
		CouponCode string `json:"couponCode"`
	}
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, "2026-01-02T03:04:05Z", got.CreatedAt)
	assert.Equal(t, "u1", got.Customer.UserID)
	assert.Equal(t, "30.00", got.Total)
	assert.Equal(t, "HALF", got.CouponCode)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "package", got.Items[1].Kind)
	assert.Equal(t, "40.00", got.Items[1].UnitPrice)
	assert.Equal(t, []string{"Gauze", "Bandage"}, got.Items[1].Contents)
}

func TestDispatcher(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(newBuilder(), sink, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.OrderPlaced(ctx, testOrder(order.Registered("u1")))
	// The request finishing must not abort delivery.
	cancel()

	require.NoError(t, d.Close())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "o1", sink.events[0].OrderID)
	assert.True(t, sink.closed)

	// Dropped after close.
	d.OrderPlaced(context.Background(), testOrder(order.Registered("u1")))
	assert.Len(t, sink.events, 1)
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	d := NewDispatcher(newBuilder(), sink, time.Second)

	d.OrderPlaced(context.Background(), testOrder(order.Registered("u1")))
	d.OrderPlaced(context.Background(), testOrder(order.Registered("nobody")))

	require.NoError(t, d.Close())
	assert.Empty(t, sink.events)
}

func TestLogSink(t *testing.T) {
	ev, err := newBuilder().Build(context.Background(), testOrder(order.Registered("u1")))
	require.NoError(t, err)
	require.NoError(t, LogSink{}.Send(context.Background(), ev))
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	ev, err := newBuilder().Build(context.Background(), testOrder(order.Registered("u1")))
	require.NoError(t, err)

	w := &fakeWriter{}
	s := &KafkaSink{w: w}
	require.NoError(t, s.Send(context.Background(), ev))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "o1", string(msg.Key))
	assert.True(t, json.Valid(msg.Value))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.placed", string(msg.Headers[0].Value))

	require.NoError(t, s.Close())
	assert.True(t, w.closed)

	w.err = errors.New("leader not available")
	err = s.Send(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write message")
}
