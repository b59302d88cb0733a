package generate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	fimlet "github.com/Paranoid-AF/fimlet"
)

func TestGateInvokeSkipsDelay(t *testing.T) {
	g := NewGate(time.Second)

	start := time.Now()
	if err := g.Wait(context.Background(), fimlet.TriggerInvoke); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("explicit invoke waited %v", elapsed)
	}
}

func TestGateAutomaticWaitsForDelay(t *testing.T) {
	delay := 50 * time.Millisecond
	g := NewGate(delay)

	start := time.Now()
	if err := g.Wait(context.Background(), fimlet.TriggerAutomatic); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("automatic trigger proceeded after %v, want at least %v", elapsed, delay)
	}
}

func TestGateEmptyTriggerIsAutomatic(t *testing.T) {
	delay := 30 * time.Millisecond
	g := NewGate(delay)

	start := time.Now()
	if err := g.Wait(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("empty trigger proceeded after %v, want at least %v", elapsed, delay)
	}
}

func TestGateFiredTimerClearsSlot(t *testing.T) {
	g := NewGate(10 * time.Millisecond)
	if err := g.Wait(context.Background(), fimlet.TriggerAutomatic); err != nil {
		t.Fatal(err)
	}
	if g.Pending() {
		t.Error("slot should be empty after the timer fired")
	}
}

func TestGateSecondCallSupersedesFirst(t *testing.T) {
	g := NewGate(50 * time.Millisecond)

	var fired atomic.Int32
	first := make(chan error, 1)
	go func() {
		err := g.Wait(context.Background(), fimlet.TriggerAutomatic)
		if err == nil {
			fired.Add(1)
		}
		first <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if !g.Pending() {
		t.Fatal("expected a pending timer from the first call")
	}

	if err := g.Wait(context.Background(), fimlet.TriggerAutomatic); err != nil {
		t.Fatalf("second call: %v", err)
	}
	fired.Add(1)

	select {
	case err := <-first:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("first call returned %v, want ErrSuperseded", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first call never returned")
	}

	if got := fired.Load(); got != 1 {
		t.Errorf("%d callbacks fired, want 1", got)
	}
}

func TestGateInvokeSupersedesPendingAutomatic(t *testing.T) {
	g := NewGate(time.Second)

	first := make(chan error, 1)
	go func() { first <- g.Wait(context.Background(), fimlet.TriggerAutomatic) }()
	time.Sleep(10 * time.Millisecond)

	if err := g.Wait(context.Background(), fimlet.TriggerInvoke); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	select {
	case err := <-first:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("pending call returned %v, want ErrSuperseded", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("pending call was not cancelled by the explicit invoke")
	}
	if g.Pending() {
		t.Error("explicit invoke must not leave a pending timer")
	}
}

func TestGateCancelWhilePending(t *testing.T) {
	g := NewGate(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- g.Wait(ctx, fimlet.TriggerAutomatic) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("cancelled wait did not return")
	}
	if g.Pending() {
		t.Error("cancelled wait must clear the slot")
	}
}

func TestGateInvokeWithCancelledContext(t *testing.T) {
	g := NewGate(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Wait(ctx, fimlet.TriggerInvoke); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestGateStop(t *testing.T) {
	g := NewGate(time.Second)

	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background(), fimlet.TriggerAutomatic) }()
	time.Sleep(10 * time.Millisecond)
	g.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("got %v, want ErrSuperseded", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop did not release the waiter")
	}
}

func TestGateRapidCallsOnlyLastFires(t *testing.T) {
	g := NewGate(100 * time.Millisecond)

	const n = 10
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() { results <- g.Wait(context.Background(), fimlet.TriggerAutomatic) }()
		time.Sleep(5 * time.Millisecond)
	}

	var proceeded, superseded int
	for i := 0; i < n; i++ {
		select {
		case err := <-results:
			switch {
			case err == nil:
				proceeded++
			case errors.Is(err, ErrSuperseded):
				superseded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for gate results")
		}
	}
	if proceeded != 1 || superseded != n-1 {
		t.Errorf("proceeded=%d superseded=%d, want 1 and %d", proceeded, superseded, n-1)
	}
}

func TestNewGateNegativeDelay(t *testing.T) {
	g := NewGate(-time.Second)
	if err := g.Wait(context.Background(), fimlet.TriggerAutomatic); err != nil {
		t.Fatal(err)
	}
}
