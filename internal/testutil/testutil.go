// Package testutil provides shared test helpers for setting up vaults,
// catalogs and a scripted oracle.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/synapse/internal/index"
	"github.com/starford/synapse/internal/oracle"
	"github.com/starford/synapse/internal/storage"
	"github.com/starford/synapse/internal/vault"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "synapse-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Clock is the fixed time TestVault services run at.
var Clock = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestVault creates a vault service over a temporary directory and catalog.
// files are written before the initial sync.
func TestVault(t *testing.T, files map[string]string, opts ...vault.Option) *vault.Service {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	base := []vault.Option{
		vault.WithLogger(Logger()),
		vault.WithClock(func() time.Time { return Clock }),
	}
	svc := vault.NewService(store, TestDB(t), append(base, opts...)...)
	if err := svc.Sync(); err != nil {
		t.Fatal(err)
	}
	return svc
}

// ReadFile returns a vault file's content, failing the test if it is missing.
func ReadFile(t *testing.T, svc *vault.Service, rel string) string {
	t.Helper()
	data, err := svc.Read(context.Background(), rel)
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

// ScriptedOracle replies with canned responses in order and records every
// request. When the script runs out the last response is repeated.
type ScriptedOracle struct {
	mu        sync.Mutex
	responses []oracle.Response
	Err       error
	Requests  []oracle.Request
}

// NewScriptedOracle returns an oracle replying with texts, each worth
// 10 tokens.
func NewScriptedOracle(texts ...string) *ScriptedOracle {
	s := &ScriptedOracle{}
	for _, txt := range texts {
		s.responses = append(s.responses, oracle.Response{Text: txt, Tokens: 10})
	}
	return s
}

// Generate implements oracle.Oracle.
func (s *ScriptedOracle) Generate(_ context.Context, req oracle.Request) (oracle.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return oracle.Response{}, s.Err
	}
	if len(s.responses) == 0 {
		return oracle.Response{}, nil
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp, nil
}

// Calls returns the number of requests seen.
func (s *ScriptedOracle) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// LastPrompt returns the prompt of the most recent request.
func (s *ScriptedOracle) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Requests) == 0 {
		return ""
	}
	return s.Requests[len(s.Requests)-1].Prompt
}
