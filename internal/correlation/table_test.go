package correlation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/hubclient/internal/clock"
)

var epoch = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func newTestTable(clk clock.Clock, opts ...Option) *Table {
	return NewTable(30*time.Second, append([]Option{WithClock(clk)}, opts...)...)
}

func TestTable_ResolveExactlyOnce(t *testing.T) {
	clk := clock.NewFake(epoch)
	tbl := newTestTable(clk)

	var sentID string
	f := tbl.Call(func(id string) error {
		sentID = id
		return nil
	})

	if f.ID() != sentID {
		t.Fatalf("future id %q != sent id %q", f.ID(), sentID)
	}
	if tbl.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", tbl.Pending())
	}
	if _, err := f.Result(); !errors.Is(err, ErrPending) {
		t.Errorf("Result() before settle error = %v, want ErrPending", err)
	}

	if !tbl.Resolve(sentID, "first") {
		t.Fatal("Resolve() = false, want true")
	}
	if tbl.Resolve(sentID, "second") {
		t.Error("second Resolve() = true, want false")
	}
	if tbl.Reject(sentID, errors.New("late")) {
		t.Error("Reject() after Resolve = true, want false")
	}

	clk.Advance(time.Minute)

	got, err := f.Result()
	if err != nil || got != "first" {
		t.Errorf("Result() = %q, %v, want %q, nil", got, err, "first")
	}
	if tbl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tbl.Pending())
	}
	if clk.Pending() != 0 {
		t.Errorf("deadline timer still armed")
	}
}

func TestTable_Timeout(t *testing.T) {
	clk := clock.NewFake(epoch)
	var observed []string
	tbl := newTestTable(clk, WithObserver(func(id, outcome string, err error) {
		observed = append(observed, outcome)
	}))

	f := tbl.Call(func(string) error { return nil })

	clk.Advance(29 * time.Second)
	select {
	case <-f.Done():
		t.Fatal("settled before deadline")
	default:
	}

	clk.Advance(time.Second)

	_, err := f.Result()
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("Result() error = %v, want ErrRequestTimeout", err)
	}
	if tbl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tbl.Pending())
	}
	if tbl.Resolve(f.ID(), "too late") {
		t.Error("Resolve() after timeout = true, want false")
	}
	if len(observed) != 1 || observed[0] != "timeout" {
		t.Errorf("observed = %v, want [timeout]", observed)
	}
}

func TestTable_RejectWithAgentError(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch))
	f := tbl.Call(func(string) error { return nil })

	tbl.Reject(f.ID(), &AgentError{RequestID: f.ID(), AgentType: "intake", Message: "bad claim"})

	_, err := f.Result()
	var agentErr *AgentError
	if !errors.As(err, &agentErr) {
		t.Fatalf("error = %v, want *AgentError", err)
	}
	if agentErr.Message != "bad claim" {
		t.Errorf("Message = %q, want %q", agentErr.Message, "bad claim")
	}
	if err.Error() != "agent intake: bad claim" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTable_SendErrorRejects(t *testing.T) {
	clk := clock.NewFake(epoch)
	tbl := newTestTable(clk)
	sendErr := errors.New("not connected")

	f := tbl.Call(func(string) error { return sendErr })

	_, err := f.Result()
	if !errors.Is(err, sendErr) {
		t.Errorf("Result() error = %v, want %v", err, sendErr)
	}
	if tbl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tbl.Pending())
	}
	if clk.Pending() != 0 {
		t.Errorf("deadline timer still armed")
	}
}

func TestTable_RegisteredBeforeSend(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch))

	// A response that arrives while send is still running must match.
	f := tbl.Call(func(id string) error {
		if !tbl.Resolve(id, "fast") {
			t.Error("request not registered before send")
		}
		return nil
	})

	if got, err := f.Result(); err != nil || got != "fast" {
		t.Errorf("Result() = %q, %v", got, err)
	}
}

func TestTable_RejectAll(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch))

	var futures []*Future
	for i := 0; i < 3; i++ {
		futures = append(futures, tbl.Call(func(string) error { return nil }))
	}

	if n := tbl.RejectAll(ErrConnectionLost); n != 3 {
		t.Errorf("RejectAll() = %d, want 3", n)
	}
	for i, f := range futures {
		if _, err := f.Result(); !errors.Is(err, ErrConnectionLost) {
			t.Errorf("future %d error = %v, want ErrConnectionLost", i, err)
		}
	}
	if tbl.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tbl.Pending())
	}
}

func TestTable_UUIDv7IDs(t *testing.T) {
	tbl := NewTable(0)

	seen := map[string]bool{}
	var prev string
	for i := 0; i < 100; i++ {
		f := tbl.Call(func(string) error { return nil })
		id, err := uuid.Parse(f.ID())
		if err != nil {
			t.Fatalf("id %q is not a uuid: %v", f.ID(), err)
		}
		if id.Version() != 7 {
			t.Errorf("version = %d, want 7", id.Version())
		}
		if seen[f.ID()] {
			t.Fatalf("duplicate id %s", f.ID())
		}
		if prev != "" && f.ID() <= prev {
			t.Errorf("ids not increasing: %s after %s", f.ID(), prev)
		}
		seen[f.ID()] = true
		prev = f.ID()
	}
	tbl.RejectAll(ErrConnectionLost)
}

func TestTable_IDGeneratorError(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch), WithIDGenerator(func() (string, error) {
		return "", errors.New("entropy exhausted")
	}))

	called := false
	f := tbl.Call(func(string) error {
		called = true
		return nil
	})

	if called {
		t.Error("send called without an id")
	}
	if _, err := f.Result(); err == nil {
		t.Error("expected rejected future")
	}
}

func TestTable_Requests(t *testing.T) {
	clk := clock.NewFake(epoch)
	n := 0
	tbl := newTestTable(clk, WithIDGenerator(func() (string, error) {
		n++
		return fmt.Sprintf("req-%d", n), nil
	}))

	tbl.Call(func(string) error { return nil })
	clk.Advance(time.Second)
	tbl.Call(func(string) error { return nil })

	reqs := tbl.Requests()
	if len(reqs) != 2 {
		t.Fatalf("len(Requests()) = %d, want 2", len(reqs))
	}
	if reqs[0].ID != "req-1" || reqs[1].ID != "req-2" {
		t.Errorf("Requests() order = %v", reqs)
	}
	if !reqs[0].Deadline.Equal(epoch.Add(30 * time.Second)) {
		t.Errorf("Deadline = %v, want %v", reqs[0].Deadline, epoch.Add(30*time.Second))
	}
}

func TestFuture_Wait(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch))
	f := tbl.Call(func(string) error { return nil })

	var wg sync.WaitGroup
	wg.Add(1)
	var got string
	var err error
	go func() {
		defer wg.Done()
		got, err = f.Wait(context.Background())
	}()

	tbl.Resolve(f.ID(), "answer")
	wg.Wait()

	if err != nil || got != "answer" {
		t.Errorf("Wait() = %q, %v", got, err)
	}
}

func TestFuture_WaitContextCancelled(t *testing.T) {
	tbl := newTestTable(clock.NewFake(epoch))
	f := tbl.Call(func(string) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
	if tbl.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 (ctx does not cancel the request)", tbl.Pending())
	}
}

func TestRejected(t *testing.T) {
	f := Rejected("x", ErrConnectionLost)
	select {
	case <-f.Done():
	default:
		t.Fatal("Rejected future not done")
	}
	if _, err := f.Result(); !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Result() error = %v", err)
	}
}
