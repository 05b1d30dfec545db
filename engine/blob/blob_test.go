package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_PutGet(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "docs", "raw/a.txt", []byte("hello"), "text/plain"))
	data, err := s.Get(ctx, "docs", "raw/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	ct, ok := s.ContentType("docs", "raw/a.txt")
	assert.True(t, ok)
	assert.Equal(t, "text/plain", ct)

	_, err = s.Get(ctx, "other", "raw/a.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "docs", "k", []byte("abc"), ""))

	data, _ := s.Get(ctx, "docs", "k")
	data[0] = 'x'
	again, _ := s.Get(ctx, "docs", "k")
	assert.Equal(t, "abc", string(again))
}

func TestMemStore_Subscribe(t *testing.T) {
	s := NewMemStore()
	var got []domain.Notification
	s.Subscribe("docs", func(n domain.Notification) { got = append(got, n) })

	require.NoError(t, s.Put(context.Background(), "docs", "raw/a.pdf", []byte("x"), ""))
	require.NoError(t, s.Put(context.Background(), "elsewhere", "raw/b.pdf", []byte("x"), ""))

	require.Len(t, got, 1)
	assert.Equal(t, domain.Notification{Bucket: "docs", Key: "raw/a.pdf", EventType: domain.EventObjectCreated}, got[0])
}

func TestMemStore_WatchReturnsOnCancel(t *testing.T) {
	s := NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, "docs", func(domain.Notification) {}) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestFileStore_PutGet(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "docs", "trusted/report.txt", []byte("text"), ContentTypeText))
	data, err := s.Get(ctx, "docs", "trusted/report.txt")
	require.NoError(t, err)
	assert.Equal(t, "text", string(data))

	// overwrite
	require.NoError(t, s.Put(ctx, "docs", "trusted/report.txt", []byte("v2"), ContentTypeText))
	data, _ = s.Get(ctx, "docs", "trusted/report.txt")
	assert.Equal(t, "v2", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "docs", "trusted"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_NotFound(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Get(context.Background(), "docs", "raw/missing.pdf")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, k := range []string{"", "../etc/passwd", "/abs"} {
		err := s.Put(context.Background(), "docs", k, []byte("x"), "")
		assert.Error(t, err, "key %q", k)
	}
}

func TestFileStore_RejectsEscapingBuckets(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "store")
	s := NewFileStore(root)
	ctx := context.Background()
	for _, b := range []string{"", ".", "..", "../outside", "a/b", `a\b`} {
		err := s.Put(ctx, b, "trusted/x.txt", []byte("x"), "text/plain")
		assert.Error(t, err, "bucket %q", b)
		_, err = s.Get(ctx, b, "trusted/x.txt")
		assert.Error(t, err, "bucket %q", b)
		assert.Error(t, s.Watch(ctx, b, func(domain.Notification) {}), "bucket %q", b)
	}
	_, err := os.Stat(filepath.Join(parent, "outside"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing may be written outside the root")
}

func TestFileStore_DotPrefixedNames(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "docs", "raw/..notes.pdf", []byte("x"), ""))
	data, err := s.Get(ctx, "docs", "raw/..notes.pdf")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))

	assert.Error(t, s.Put(ctx, "docs", "raw/../../escape.pdf", []byte("x"), ""))
}

func TestFileStore_Watch(t *testing.T) {
	root := t.TempDir()
	s := NewFileStore(root)
	s.Debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan domain.Notification, 8)
	go s.Watch(ctx, "docs", func(n domain.Notification) { events <- n })

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, s.Put(ctx, "docs", "raw/new.pdf", []byte("%PDF"), ""))

	select {
	case n := <-events:
		assert.Equal(t, "docs", n.Bucket)
		assert.Equal(t, "raw/new.pdf", n.Key)
		assert.Equal(t, domain.EventObjectCreated, n.EventType)
	case <-time.After(3 * time.Second):
		t.Fatal("no notification for new file")
	}
}

func startJetStream(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{Port: -1, JetStream: true, StoreDir: t.TempDir()})
	require.NoError(t, err)
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
	})
	return nc
}

func TestObjectStore_PutGet(t *testing.T) {
	s, err := NewObjectStore(startJetStream(t))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Get(ctx, "docs", "raw/missing.pdf")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	require.NoError(t, s.Put(ctx, "docs", "trusted/My_Notes.txt", []byte("The sky is blue."), ContentTypeText))
	data, err := s.Get(ctx, "docs", "trusted/My_Notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", string(data))
}

func TestObjectStore_Watch(t *testing.T) {
	s, err := NewObjectStore(startJetStream(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Existing objects are not reported.
	require.NoError(t, s.Put(ctx, "docs", "raw/old.pdf", []byte("old"), ""))

	events := make(chan domain.Notification, 4)
	ready := make(chan struct{})
	go func() {
		close(ready)
		s.Watch(ctx, "docs", func(n domain.Notification) { events <- n })
	}()
	<-ready
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, s.Put(ctx, "docs", "raw/new.pdf", []byte("new"), ""))

	select {
	case n := <-events:
		assert.Equal(t, "raw/new.pdf", n.Key)
		assert.Equal(t, "docs", n.Bucket)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification from object store watch")
	}
}
