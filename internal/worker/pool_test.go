package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ruptura/internal/report"
)

func drain(t *testing.T, events <-chan report.Event) []report.Event {
	t.Helper()
	var got []report.Event
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestPool_Start_Success(t *testing.T) {
	p := NewPool(1, time.Second)

	events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		emit(report.Event{Type: report.EventProgress, Index: 2, Message: "Transformando, loja1.db"})
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := drain(t, events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want progress + terminal", len(got))
	}
	if got[0].Type != report.EventProgress || got[0].Index != 2 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Type != report.EventDone {
		t.Errorf("terminal event = %+v, want Done", got[1])
	}
}

func TestPool_Start_RunError(t *testing.T) {
	p := NewPool(1, time.Second)
	wantErr := errors.New("all listed databases failed")

	events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		return wantErr
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := drain(t, events)
	last := got[len(got)-1]
	if last.Type != report.EventFailed {
		t.Fatalf("terminal event = %+v, want Failed", last)
	}
	if !errors.Is(last.Err, wantErr) {
		t.Errorf("terminal err = %v, want %v", last.Err, wantErr)
	}
}

func TestPool_Start_PanicBecomesFailure(t *testing.T) {
	p := NewPool(1, time.Second)

	events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := drain(t, events)
	last := got[len(got)-1]
	if last.Type != report.EventFailed {
		t.Fatalf("terminal event = %+v, want Failed", last)
	}
	if p.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d after panic, want 0", p.ActiveCount())
	}
}

func TestPool_Start_BusyRejection(t *testing.T) {
	p := NewPool(1, 50*time.Millisecond)
	release := make(chan struct{})

	events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err = p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		return nil
	})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() error = %v, want ErrBusy", err)
	}

	close(release)
	drain(t, events)
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	p := NewPool(2, 10*time.Millisecond)
	release := make(chan struct{})

	var streams []<-chan report.Event
	for i := 0; i < 2; i++ {
		events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
			<-release
			return nil
		})
		if err != nil {
			t.Fatalf("Start() %d error = %v", i, err)
		}
		streams = append(streams, events)
	}

	if p.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", p.ActiveCount())
	}
	if p.MaxConcurrent() != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", p.MaxConcurrent())
	}
	if _, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		return nil
	}); !errors.Is(err, ErrBusy) {
		t.Errorf("third Start() error = %v, want ErrBusy", err)
	}

	close(release)
	for _, s := range streams {
		drain(t, s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.WaitForDrain(ctx); err != nil {
		t.Errorf("WaitForDrain() error = %v", err)
	}
}

func TestPool_Defaults(t *testing.T) {
	p := NewPool(0, 0)
	if p.MaxConcurrent() != DefaultMaxConcurrent {
		t.Errorf("MaxConcurrent = %d, want default %d", p.MaxConcurrent(), DefaultMaxConcurrent)
	}
}

func TestPool_EventOrder(t *testing.T) {
	p := NewPool(1, time.Second)
	n := 5

	events, err := p.Start(context.Background(), func(ctx context.Context, emit report.EventFunc) error {
		for i := 0; i < n; i++ {
			emit(report.Event{Type: report.EventProgress, Index: i + 2, Message: fmt.Sprintf("loja%d", i)})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got := drain(t, events)
	for i := 0; i < n; i++ {
		if got[i].Index != i+2 {
			t.Errorf("event %d index = %d, want emission order preserved", i, got[i].Index)
		}
	}
}
