package testutil

import (
	"context"
	"sync"

	"github.com/bhrochdi/parentguard/internal/agent"
)

// MockAgent implements agent.Agent for testing.
// All methods are safe for concurrent use.
type MockAgent struct {
	mu sync.Mutex

	// Preset process list response
	processes []string

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error

	// Call counts per method
	calls map[string]int

	// Recorded arguments, in call order
	ruleSets  []agent.RuleSet
	blocked   []string
	unblocked []string
}

// NewMockAgent returns a zero-state MockAgent ready for use.
func NewMockAgent() *MockAgent {
	return &MockAgent{
		errors: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// SetProcesses presets the process list returned by ListActiveProcesses.
func (m *MockAgent) SetProcesses(procs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes = procs
}

// SetError injects an error to be returned on the next call to the named method.
// The error is consumed (returned once) and then cleared.
func (m *MockAgent) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

// Calls returns the total number of times the named method was called.
func (m *MockAgent) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// RuleSets returns every rule set passed to ReplaceRuleSet, in order.
func (m *MockAgent) RuleSets() []agent.RuleSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]agent.RuleSet{}, m.ruleSets...)
}

// BlockedDomains returns every domain passed to BlockSite, in order.
func (m *MockAgent) BlockedDomains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.blocked...)
}

// UnblockedDomains returns every domain passed to UnblockSite, in order.
func (m *MockAgent) UnblockedDomains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.unblocked...)
}

// popError returns and clears any pending error for the given method.
func (m *MockAgent) popError(method string) error {
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// --- Agent interface implementation -----------------------------------------

func (m *MockAgent) ReplaceRuleSet(ctx context.Context, rs agent.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ReplaceRuleSet"]++
	if err := m.popError("ReplaceRuleSet"); err != nil {
		return err
	}
	m.ruleSets = append(m.ruleSets, rs)
	return nil
}

func (m *MockAgent) StartMonitoring(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["StartMonitoring"]++
	return m.popError("StartMonitoring")
}

func (m *MockAgent) StopMonitoring(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["StopMonitoring"]++
	return m.popError("StopMonitoring")
}

func (m *MockAgent) BlockSite(ctx context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["BlockSite"]++
	if err := m.popError("BlockSite"); err != nil {
		return err
	}
	m.blocked = append(m.blocked, domain)
	return nil
}

func (m *MockAgent) UnblockSite(ctx context.Context, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["UnblockSite"]++
	if err := m.popError("UnblockSite"); err != nil {
		return err
	}
	m.unblocked = append(m.unblocked, domain)
	return nil
}

func (m *MockAgent) ListActiveProcesses(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["ListActiveProcesses"]++
	if err := m.popError("ListActiveProcesses"); err != nil {
		return nil, err
	}
	return append([]string{}, m.processes...), nil
}

func (m *MockAgent) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Ping"]++
	return m.popError("Ping")
}

func (m *MockAgent) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["Close"]++
	return nil
}
