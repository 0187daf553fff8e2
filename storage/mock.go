package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voltgrid/receipt-engine/common"
)

// MockObject represents a stored object in the mock store.
type MockObject struct {
	Key         string
	Body        []byte
	ContentType string
}

// MockStore is an in-memory ObjectStore for tests. It tracks calls,
// supports per-key failure injection, and lets tests script the Select
// behavior. Without a SelectFunc every Select reports a PushdownError,
// which exercises the engine's client-side fallback.
type MockStore struct {
	mu      sync.Mutex
	objects map[string]*MockObject

	// Failure injection. A key is matched by prefix so tests can fail a
	// whole partition with one entry.
	FailPut    map[string]error
	FailGet    map[string]error
	FailDelete map[string]error
	FailList   map[string]error

	// SelectFunc, when set, handles Select calls. Tests use it to
	// simulate server-side filtering or vendor errors.
	SelectFunc func(key, expression string, body []byte) ([]byte, error)

	// Call tracking.
	PutCalls    []string
	GetCalls    []string
	DeleteCalls []string
	ListCalls   []string
	SelectCalls []string
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		objects:    make(map[string]*MockObject),
		FailPut:    make(map[string]error),
		FailGet:    make(map[string]error),
		FailDelete: make(map[string]error),
		FailList:   make(map[string]error),
	}
}

func injected(failures map[string]error, key string) error {
	for prefix, err := range failures {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return nil
}

// Put stores body under key.
func (m *MockStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, key)
	if err := injected(m.FailPut, key); err != nil {
		return &common.StorageError{Op: "put", Key: key, Err: err}
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = &MockObject{Key: key, Body: buf, ContentType: contentType}
	return nil
}

// Get returns the object body or NotFoundError.
func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls = append(m.GetCalls, key)
	if err := injected(m.FailGet, key); err != nil {
		return nil, &common.StorageError{Op: "get", Key: key, Err: err}
	}
	obj, ok := m.objects[key]
	if !ok {
		return nil, &common.NotFoundError{Key: key}
	}
	buf := make([]byte, len(obj.Body))
	copy(buf, obj.Body)
	return buf, nil
}

// Delete removes key; deleting an absent key succeeds.
func (m *MockStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, key)
	if err := injected(m.FailDelete, key); err != nil {
		return &common.StorageError{Op: "delete", Key: key, Err: err}
	}
	delete(m.objects, key)
	return nil
}

// List returns the keys under prefix in lexical order.
func (m *MockStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls = append(m.ListCalls, prefix)
	if err := injected(m.FailList, prefix); err != nil {
		return nil, &common.StorageError{Op: "list", Key: prefix, Err: err}
	}
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Select delegates to SelectFunc, or reports pushdown as unsupported.
func (m *MockStore) Select(ctx context.Context, key, expression string) ([]byte, error) {
	m.mu.Lock()
	m.SelectCalls = append(m.SelectCalls, key)
	fn := m.SelectFunc
	obj, ok := m.objects[key]
	m.mu.Unlock()

	if fn == nil {
		return nil, &common.PushdownError{Key: key, Err: common.NewValidationError("", "select not supported")}
	}
	if !ok {
		return nil, &common.NotFoundError{Key: key}
	}
	out, err := fn(key, expression, obj.Body)
	if err != nil {
		return nil, &common.PushdownError{Key: key, Err: err}
	}
	return out, nil
}

// PresignGet returns a deterministic fake URL.
func (m *MockStore) PresignGet(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignTTL
	}
	return "https://mock.store/" + key + "?expires=" + expires.String(), nil
}

// Exists reports whether key is present.
func (m *MockStore) Exists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Object returns the stored object for key, or nil.
func (m *MockStore) Object(key string) *MockObject {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

// Len returns the number of stored objects.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
