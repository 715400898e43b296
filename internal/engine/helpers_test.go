package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/adapter"
)

func init() {
	adapter.Register("fake", func() adapter.Adapter { return newFakeAdapter() })
}

// fakeAdapter records every statement instead of executing it, so
// engine tests can assert on the exact SQL sequence without a real
// database.
type fakeAdapter struct {
	mu         sync.Mutex
	statements []string
	schemas    []string

	existing map[string]bool  // RelationExists answers
	counts   map[string]int64 // QueryValue answers by exact query
	failOn   string           // statements containing this substring error
	execWait time.Duration    // simulated per-statement latency

	commits   int
	rollbacks int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		existing: make(map[string]bool),
		counts:   make(map[string]int64),
	}
}

func (f *fakeAdapter) Connect(context.Context, adapter.Config) error { return nil }
func (f *fakeAdapter) Close() error                                  { return nil }
func (f *fakeAdapter) DialectName() string                           { return "fake" }

func (f *fakeAdapter) Qualify(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func (f *fakeAdapter) EnsureSchema(_ context.Context, schema string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemas = append(f.schemas, schema)
	return nil
}

func (f *fakeAdapter) RelationExists(_ context.Context, relation string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[relation], nil
}

func (f *fakeAdapter) Exec(_ context.Context, statement string) (int64, error) {
	return f.record(statement)
}

func (f *fakeAdapter) Query(context.Context, string) (*adapter.Rows, error) {
	return nil, errors.New("fake adapter does not return rows")
}

func (f *fakeAdapter) QueryValue(_ context.Context, query string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(query, f.failOn) {
		return fmt.Errorf("forced failure on %q", query)
	}
	n := f.counts[query]
	p, ok := dest.(*int64)
	if !ok {
		return fmt.Errorf("unexpected dest type %T", dest)
	}
	*p = n
	return nil
}

func (f *fakeAdapter) Begin(context.Context) (adapter.Tx, error) {
	return &fakeTx{a: f}, nil
}

func (f *fakeAdapter) record(statement string) (int64, error) {
	if f.execWait > 0 {
		time.Sleep(f.execWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && strings.Contains(statement, f.failOn) {
		return 0, fmt.Errorf("forced failure on %q", statement)
	}
	f.statements = append(f.statements, statement)
	return 0, nil
}

func (f *fakeAdapter) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.statements...)
}

// firstIndex returns the position of the first recorded statement
// containing sub, or -1.
func (f *fakeAdapter) firstIndex(sub string) int {
	for i, s := range f.recorded() {
		if strings.Contains(s, sub) {
			return i
		}
	}
	return -1
}

type fakeTx struct {
	a *fakeAdapter
}

func (t *fakeTx) Exec(_ context.Context, statement string) (int64, error) {
	return t.a.record(statement)
}

func (t *fakeTx) QueryValue(ctx context.Context, query string, dest any) error {
	return t.a.QueryValue(ctx, query, dest)
}

func (t *fakeTx) Commit() error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	t.a.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	t.a.rollbacks++
	return nil
}

// projectFixture writes a project tree under a temp dir. files maps
// relative paths to contents; .sql files go under models/, .csv under
// seeds/, and schema.yaml files wherever the key says.
func projectFixture(t *testing.T, files map[string]string) (modelsDir, seedsDir string) {
	t.Helper()
	root := t.TempDir()
	modelsDir = filepath.Join(root, "models")
	seedsDir = filepath.Join(root, "seeds")
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return modelsDir, seedsDir
}

// newTestEngine builds an engine over a fixture using the fake adapter
// and returns both.
func newTestEngine(t *testing.T, files map[string]string) (*Engine, *fakeAdapter) {
	t.Helper()
	modelsDir, seedsDir := projectFixture(t, files)
	eng, err := New(Config{
		ModelsDir: modelsDir,
		SeedsDir:  seedsDir,
		Adapter:   adapter.Config{Type: "fake", Schema: "main"},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })
	return eng, eng.Adapter().(*fakeAdapter)
}
