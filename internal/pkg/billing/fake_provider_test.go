package billing

import (
	"context"
	"fmt"
	"sync"
)

type fakeProvider struct {
	mu            sync.Mutex
	seq           int
	customers     []CustomerInput
	checkouts     []CheckoutSessionInput
	portals       []string
	subscriptions map[string]ProviderSubscription
	listed        []ProviderSubscription

	checkoutErr error
	listErr     error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{subscriptions: map[string]ProviderSubscription{}}
}

func (f *fakeProvider) CreateCustomer(_ context.Context, in CustomerInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.customers = append(f.customers, in)
	return fmt.Sprintf("cus_test_%d", f.seq), nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, in CheckoutSessionInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkoutErr != nil {
		return "", f.checkoutErr
	}
	f.checkouts = append(f.checkouts, in)
	return fmt.Sprintf("https://checkout.example.com/c/%d", len(f.checkouts)), nil
}

func (f *fakeProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.portals = append(f.portals, customerID+"|"+returnURL)
	return "https://billing.example.com/p/" + customerID, nil
}

func (f *fakeProvider) GetSubscription(_ context.Context, id string) (*ProviderSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, &ProviderError{Op: "get subscription", Code: ProviderCodeResourceMissing, Err: fmt.Errorf("no such subscription %s", id)}
	}
	return &sub, nil
}

func (f *fakeProvider) ListSubscriptions(_ context.Context, _ string, limit int) ([]ProviderSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.listed) > limit {
		return f.listed[:limit], nil
	}
	return f.listed, nil
}

func (f *fakeProvider) calls() (customers, checkouts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.customers), len(f.checkouts)
}
