package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter stands in for a real provider in development and tests. It
// counts calls and can be forced to fail.
type MockAdapter struct {
	AdapterName string
	FailWith    error

	mu        sync.Mutex
	calls     int
	LastDeliv Delivery
}

func (m *MockAdapter) Name() string {
	if m.AdapterName != "" {
		return m.AdapterName
	}
	return "mock"
}

func (m *MockAdapter) Deliver(ctx context.Context, d Delivery) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.LastDeliv = d
	if m.FailWith != nil {
		return "", m.FailWith
	}
	return fmt.Sprintf("mock-%d", m.calls), nil
}

func (m *MockAdapter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var _ Adapter = (*MockAdapter)(nil)
