package notify

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		s    Severity
		want string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeveritySuccess, "success"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{Severity(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestSeverity_Level(t *testing.T) {
	if SeverityError.Level() != slog.LevelError {
		t.Errorf("SeverityError.Level() = %v", SeverityError.Level())
	}
	if SeveritySuccess.Level() != slog.LevelInfo {
		t.Errorf("SeveritySuccess.Level() = %v", SeveritySuccess.Level())
	}
}

func TestChannel_DeliverAndDrop(t *testing.T) {
	hooked := 0
	c := NewChannel(2, testLogger(), WithDropHook(func() { hooked++ }))

	for i := 0; i < 3; i++ {
		c.Notify(Notification{Severity: SeverityInfo, Event: "e", Message: "m"})
	}

	delivered, dropped := c.Stats()
	if delivered != 2 {
		t.Errorf("delivered = %d, want 2", delivered)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if len(c.C()) != 2 {
		t.Errorf("len(C()) = %d, want 2", len(c.C()))
	}
	if hooked != 1 {
		t.Errorf("drop hook calls = %d, want 1", hooked)
	}
}

func TestChannel_CloseStopsDelivery(t *testing.T) {
	c := NewChannel(4, testLogger())
	c.Close()
	c.Close()

	c.Notify(Notification{Event: "late"})

	if _, ok := <-c.C(); ok {
		t.Error("expected closed channel")
	}
}

func TestRecorder_Events(t *testing.T) {
	var r Recorder
	r.Notify(Notification{Event: "a"})
	r.Notify(Notification{Event: "b"})
	r.Notify(Notification{Event: "a"})

	if got := len(r.All()); got != 3 {
		t.Errorf("len(All()) = %d, want 3", got)
	}
	if got := len(r.Events("a")); got != 2 {
		t.Errorf("len(Events(a)) = %d, want 2", got)
	}
}

func TestFanout(t *testing.T) {
	var a, b Recorder
	Fanout{&a, nil, &b}.Notify(Notification{Event: "x"})

	if len(a.All()) != 1 || len(b.All()) != 1 {
		t.Errorf("fanout delivered a=%d b=%d, want 1 each", len(a.All()), len(b.All()))
	}
}
