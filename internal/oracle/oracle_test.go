package oracle

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFuncAdapter(t *testing.T) {
	var got Request
	o := Func(func(_ context.Context, req Request) (Response, error) {
		got = req
		return Response{Text: "{}", Tokens: 5}, nil
	})
	resp, err := o.Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil || resp.Tokens != 5 || got.Prompt != "hi" {
		t.Fatalf("resp=%+v err=%v req=%+v", resp, err, got)
	}
}

func TestGuardTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ Request) (Response, error) {
		<-ctx.Done()
		return Response{}, ctx.Err()
	})
	_, err := Guard(slow, nil, 20*time.Millisecond).Generate(context.Background(), Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestGuardRateLimit(t *testing.T) {
	calls := 0
	fast := Func(func(context.Context, Request) (Response, error) {
		calls++
		return Response{}, nil
	})
	// One call per minute, burst 1: the second call cannot be admitted
	// before the short timeout.
	g := Guard(fast, NewLimiter(1, 1), 50*time.Millisecond)
	if _, err := g.Generate(context.Background(), Request{}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("second call should be throttled")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNewLimiterDisabled(t *testing.T) {
	if NewLimiter(0, 5) != nil {
		t.Error("non-positive rate should disable limiting")
	}
}

func TestUnavailable(t *testing.T) {
	if _, err := Unavailable.Generate(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
}
