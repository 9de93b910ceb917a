// Package payment talks to the payment processor that collects consultation
// fees. Orders carry the appointment id as their receipt.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Order statuses reported by the processor.
const (
	StatusCreated   = "created"
	StatusAttempted = "attempted"
	StatusPaid      = "paid"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is the processor's view of a payment order. Amount is in minor
// currency units.
type Order struct {
	ID        string `json:"id"`
	Entity    string `json:"entity,omitempty"`
	Amount    int64  `json:"amount"`
	AmountDue int64  `json:"amount_due"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

func (o *Order) Paid() bool { return o.Status == StatusPaid }

type OrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

// Processor creates and looks up payment orders.
type Processor interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
}

// Fake is an in-memory Processor. Orders stay "created" until MarkPaid.
type Fake struct {
	mu     sync.Mutex
	orders map[string]*Order
	// FailWith, when set, is returned by every call.
	FailWith error
}

func NewFake() *Fake {
	return &Fake{orders: make(map[string]*Order)}
}

func (f *Fake) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	o := &Order{
		ID:        "order_" + uuid.NewString()[:14],
		Entity:    "order",
		Amount:    req.Amount,
		AmountDue: req.Amount,
		Currency:  req.Currency,
		Receipt:   req.Receipt,
		Status:    StatusCreated,
	}
	f.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (f *Fake) FetchOrder(_ context.Context, orderID string) (*Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	o, ok := f.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

// MarkPaid simulates the customer completing checkout.
func (f *Fake) MarkPaid(orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = StatusPaid
	o.AmountDue = 0
	return nil
}

// Add registers an order as-is, for tests that need a specific receipt or
// status.
func (f *Fake) Add(o Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[o.ID] = &o
}
