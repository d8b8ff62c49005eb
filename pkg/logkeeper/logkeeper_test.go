package logkeeper

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"forum/pkg/logger"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

type fakeIndexer struct {
	mu   sync.Mutex
	docs map[string][]byte
	fail map[string]bool
}

func (f *fakeIndexer) Index(ctx context.Context, docID string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail[docID] {
		return errors.New("index unavailable")
	}
	f.docs[docID] = body
	return nil
}

func message(t *testing.T, entry logger.LogEntry) kafka.Message {
	t.Helper()
	b, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}
	return kafka.Message{Key: []byte(entry.RequestID), Value: b}
}

func TestKeeper_Run(t *testing.T) {
	idx := &fakeIndexer{docs: make(map[string][]byte), fail: map[string]bool{"forumreq-3": true}}
	k := New(idx, 3)

	jobs := make(chan kafka.Message, 10)
	for _, id := range []string{"req-1", "req-2", "req-3"} {
		jobs <- message(t, logger.LogEntry{Timestamp: time.Now(), RequestID: id, Service: "forum", Method: "GET", Path: "/post"})
	}
	jobs <- kafka.Message{Value: []byte("{not json")}
	close(jobs)

	k.Run(context.Background(), jobs)

	got := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		got = append(got, id)
	}
	sort.Strings(got)
	want := []string{"forumreq-1", "forumreq-2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("want indexed documents %v, got %v", want, got)
	}

	var entry logger.LogEntry
	if err := json.Unmarshal(idx.docs["forumreq-1"], &entry); err != nil {
		t.Fatalf("indexed body is not a log entry: %v", err)
	}
	if entry.Path != "/post" {
		t.Errorf("want path %q, got %q", "/post", entry.Path)
	}
}

func TestKeeper_RunCancelled(t *testing.T) {
	k := New(&fakeIndexer{docs: make(map[string][]byte)}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		k.Run(ctx, make(chan kafka.Message))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("want workers to exit after cancellation")
	}
}
