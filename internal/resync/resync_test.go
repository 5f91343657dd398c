package resync

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memOutbox is an in-memory Outbox.
type memOutbox struct {
	mu      sync.Mutex
	entries []OutboxEntry
	done    map[int64]bool
	failed  map[int64]string
}

func newMemOutbox(events ...Event) *memOutbox {
	o := &memOutbox{done: map[int64]bool{}, failed: map[int64]string{}}
	for i, ev := range events {
		o.entries = append(o.entries, OutboxEntry{ID: int64(i + 1), Event: ev})
	}
	return o
}

func (o *memOutbox) PendingEvents(_ context.Context, limit int) ([]OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []OutboxEntry
	for _, e := range o.entries {
		if o.done[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *memOutbox) MarkDelivered(_ context.Context, id int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done[id] = true
	return nil
}

func (o *memOutbox) MarkFailed(_ context.Context, id int64, cause string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[id] = cause
	for i := range o.entries {
		if o.entries[i].ID == id {
			o.entries[i].Attempts++
			o.entries[i].LastError = cause
		}
	}
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	got      []Event
	failures int
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("resync backend unavailable")
	}
	n.got = append(n.got, ev)
	return nil
}

func (n *recordingNotifier) events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.got...)
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	ev := DeleteCredential("alice@redmine_1_2", "ssh-ed25519 AAAA", "alice", "redmine_1_2")
	data, err := ev.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Command != CommandDeleteSSHKey || back.Key == nil || *back.Key != *ev.Key {
		t.Fatalf("round trip mismatch: %+v", back)
	}
	if _, err := Unmarshal([]byte(`{"command":"reboot"}`)); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	ob := newMemOutbox(AddCredential(1), AddCredential(2), DeleteCredential("x@y", "k", "x", "y"))
	n := &recordingNotifier{}
	d := NewDispatcher(ob, n, WithAttempts(1, 0))

	delivered, err := d.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delivered != 3 {
		t.Fatalf("delivered %d, want 3", delivered)
	}
	got := n.events()
	if got[0].OwnerID != 1 || got[1].OwnerID != 2 || got[2].Command != CommandDeleteSSHKey {
		t.Fatalf("unexpected order: %+v", got)
	}

	// nothing left on the next pass
	delivered, err = d.Flush(context.Background())
	if err != nil || delivered != 0 {
		t.Fatalf("second flush delivered %d, err %v", delivered, err)
	}
}

func TestDispatcher_RetriesWithinAttempts(t *testing.T) {
	ob := newMemOutbox(AddCredential(7))
	n := &recordingNotifier{failures: 2}
	d := NewDispatcher(ob, n, WithAttempts(3, 0))

	delivered, err := d.Flush(context.Background())
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if delivered != 1 || len(n.events()) != 1 {
		t.Fatalf("expected one delivery, got %d / %v", delivered, n.events())
	}
}

func TestDispatcher_FailureStopsBatchAndKeepsEvent(t *testing.T) {
	ob := newMemOutbox(AddCredential(1), AddCredential(2))
	n := &recordingNotifier{failures: 1}
	d := NewDispatcher(ob, n, WithAttempts(1, 0))

	delivered, err := d.Flush(context.Background())
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	if delivered != 0 {
		t.Fatalf("no event may overtake a failed one; delivered %d", delivered)
	}
	if ob.failed[1] == "" {
		t.Fatalf("failure of event 1 not recorded")
	}
	if len(n.events()) != 0 {
		t.Fatalf("event 2 delivered before event 1: %v", n.events())
	}

	// backend recovered: both go out in order
	delivered, err = d.Flush(context.Background())
	if err != nil || delivered != 2 {
		t.Fatalf("recovery flush delivered %d, err %v", delivered, err)
	}
	if got := n.events(); got[0].OwnerID != 1 || got[1].OwnerID != 2 {
		t.Fatalf("unexpected order after recovery: %+v", got)
	}
}

func TestDispatcher_RunFlushesOnKick(t *testing.T) {
	ob := newMemOutbox()
	n := &recordingNotifier{}
	d := NewDispatcher(ob, n, WithAttempts(1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx, time.Hour)
		close(done)
	}()

	ob.mu.Lock()
	ob.entries = append(ob.entries, OutboxEntry{ID: 1, Event: AddCredential(5)})
	ob.mu.Unlock()
	d.Kick()

	deadline := time.After(2 * time.Second)
	for len(n.events()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("kick did not trigger a flush")
		case <-time.After(5 * time.Millisecond):
			d.Kick()
		}
	}
	cancel()
	<-done
}

type fakePublisher struct {
	channel string
	message any
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	p.channel = channel
	p.message = message
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestRedisNotifier_Publishes(t *testing.T) {
	p := &fakePublisher{}
	n := &RedisNotifier{Client: p, Channel: "ch"}
	if err := n.Notify(context.Background(), AddCredential(3)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if p.channel != "ch" {
		t.Fatalf("published on %q", p.channel)
	}
	ev, err := Unmarshal(p.message.([]byte))
	if err != nil || ev.OwnerID != 3 {
		t.Fatalf("unexpected payload %s (%v)", p.message, err)
	}

	p.err = errors.New("connection refused")
	if err := n.Notify(context.Background(), AddCredential(3)); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestCommandNotifier(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ok := CommandNotifier{Command: "sh", Args: []string{"-c", "grep -q add_ssh_key"}}
	if err := ok.Notify(context.Background(), AddCredential(1)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	failing := CommandNotifier{Command: "sh", Args: []string{"-c", "exit 3"}}
	if err := failing.Notify(context.Background(), AddCredential(1)); err == nil {
		t.Fatalf("expected error from failing command")
	}
}

func TestNewNotifier(t *testing.T) {
	if n, err := NewNotifier(Options{}); err != nil {
		t.Fatalf("default notifier: %v", err)
	} else if _, ok := n.(LogNotifier); !ok {
		t.Fatalf("default notifier is %T", n)
	}
	if _, err := NewNotifier(Options{Kind: "command"}); err == nil {
		t.Fatalf("command notifier without command must fail")
	}
	if _, err := NewNotifier(Options{Kind: "redis"}); err == nil {
		t.Fatalf("redis notifier without url must fail")
	}
	n, err := NewNotifier(Options{Kind: "redis", RedisURL: "redis://localhost:6379/0"})
	if err != nil {
		t.Fatalf("redis notifier: %v", err)
	}
	rn := n.(*RedisNotifier)
	if rn.Channel != DefaultRedisChannel {
		t.Fatalf("channel = %q", rn.Channel)
	}
	_ = rn.Close()
	if _, err := NewNotifier(Options{Kind: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
