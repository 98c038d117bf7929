package provbatch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

//
// Mocks
//

// mockProvider records every call per operation and delegates to optional
// per-operation stubs. The zero value answers every call with success.
type mockProvider struct {
	mu      sync.Mutex
	creates []string
	enables []string
	issues  []string
	deletes []string

	createFn func(id string) (string, error)
	enableFn func(id string) (string, error)
	issueFn  func(id string) (string, error)
	deleteFn func(id string) (string, error)
}

func (m *mockProvider) CreateResource(_ context.Context, id string) (string, error) {
	m.record(&m.creates, id)
	if m.createFn != nil {
		return m.createFn(id)
	}
	return `{"status":"ok"}`, nil
}

func (m *mockProvider) EnableCapability(_ context.Context, id string) (string, error) {
	m.record(&m.enables, id)
	if m.enableFn != nil {
		return m.enableFn(id)
	}
	return `{"status":"ok"}`, nil
}

func (m *mockProvider) IssueCredential(_ context.Context, id string) (string, error) {
	m.record(&m.issues, id)
	if m.issueFn != nil {
		return m.issueFn(id)
	}
	return fmt.Sprintf(`{"credential":"secret-%s"}`, id), nil
}

func (m *mockProvider) DeleteResource(_ context.Context, id string) (string, error) {
	m.record(&m.deletes, id)
	if m.deleteFn != nil {
		return m.deleteFn(id)
	}
	return `{"status":"deleted"}`, nil
}

func (m *mockProvider) record(calls *[]string, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*calls = append(*calls, id)
}

func (m *mockProvider) deleteCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.deletes {
		if call == id {
			count++
		}
	}
	return count
}

func (m *mockProvider) totalDeletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deletes)
}

func TestMockProviderImplementsProvider(t *testing.T) {
	var _ Provider = &mockProvider{}
}

//
// Helper functions
//

// newTestSession creates a session rooted in the test's temp directory.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	session, err := NewSession(t.TempDir(), nil)
	require.NoError(t, err)
	return session
}

// testLogger returns a silent logger for wiring components under test.
func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// newTestSink opens a sink over a fresh test session.
func newTestSink(t *testing.T) (*ResultSink, *Session) {
	t.Helper()
	session := newTestSession(t)
	sink, err := newResultSink(session, testLogger())
	require.NoError(t, err)
	return sink, session
}

// fastRetry is a retry policy tuned for tests: real control flow, no
// meaningful sleeping.
func fastRetry(maxAttempts int) Policy {
	return Policy{MaxAttempts: maxAttempts, BaseDelay: 1}
}

// sequentialIDs returns n explicit task IDs.
func sequentialIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("res-%d", i)
	}
	return ids
}
