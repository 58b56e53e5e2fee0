package cooldown

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/MarkPereverzov/Memberly/config"
)

func newTestEngine(userWindow, targetWindow time.Duration) (*Engine, *time.Time) {
	e := NewEngine(&config.CooldownConfig{
		UserWindow:   userWindow,
		TargetWindow: targetWindow,
	}, zerolog.Nop(), nil)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestCanRequestFirstAttemptAllowed(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	allowed, msg := e.CanRequest(1)
	if !allowed {
		t.Fatalf("first request should be allowed, got %q", msg)
	}
}

func TestCanRequestWindowBoundary(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, false)

	*now = now.Add(3*time.Minute - time.Second)
	if allowed, _ := e.CanRequest(1); allowed {
		t.Fatal("request one second before the window must be throttled")
	}

	// Boundary is inclusive: elapsed == window allows.
	*now = now.Add(time.Second)
	if allowed, msg := e.CanRequest(1); !allowed {
		t.Fatalf("request exactly at the window must be allowed, got %q", msg)
	}
}

func TestCooldownConsumedOnFailure(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, false)

	*now = now.Add(time.Minute)
	if allowed, _ := e.CanRequest(1); allowed {
		t.Fatal("failed attempt must still consume the cooldown")
	}
}

func TestRemainingTimeFlooredToSeconds(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, false)
	*now = now.Add(time.Minute + 300*time.Millisecond)

	_, msg := e.CanRequest(1)
	// 119.7s remain; the user sees whole seconds.
	if !strings.Contains(msg, "119s") {
		t.Fatalf("expected floored 119s in message, got %q", msg)
	}
}

func TestCanTargetCountsOnlySuccesses(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, false)
	if allowed, _ := e.CanTarget(10); !allowed {
		t.Fatal("failed attempt must not start the target window")
	}

	e.RecordAttempt(2, 10, true)
	if allowed, _ := e.CanTarget(10); allowed {
		t.Fatal("successful attempt must start the target window")
	}
}

func TestCanTargetIndependentOfUser(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, true)

	// A different user hits the same target window.
	if allowed, _ := e.CanTarget(10); allowed {
		t.Fatal("target window applies regardless of requesting user")
	}
	// But an independent target stays open.
	if allowed, _ := e.CanTarget(11); !allowed {
		t.Fatal("unrelated target must not be throttled")
	}

	*now = now.Add(3 * time.Second)
	if allowed, _ := e.CanTarget(10); !allowed {
		t.Fatal("target window must reopen at the boundary")
	}
}

func TestBlockOverridesWindow(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.Block(1, time.Hour)

	*now = now.Add(30 * time.Minute)
	if allowed, msg := e.CanRequest(1); allowed {
		t.Fatal("blocked user must be rejected inside the block")
	} else if !strings.Contains(msg, "blocked") {
		t.Fatalf("rejection should mention the block, got %q", msg)
	}

	*now = now.Add(30 * time.Minute)
	if allowed, _ := e.CanRequest(1); !allowed {
		t.Fatal("block must expire at its deadline")
	}
}

func TestUnblockClearsImmediately(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	e.Block(1, time.Hour)
	e.Unblock(1)

	if allowed, _ := e.CanRequest(1); !allowed {
		t.Fatal("unblocked user must be allowed immediately")
	}
}

func TestReserveRequestConsumesTheWindow(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	if allowed, _ := e.ReserveRequest(1); !allowed {
		t.Fatal("first reservation must be allowed")
	}
	if allowed, _ := e.CanRequest(1); allowed {
		t.Fatal("reservation must consume the window immediately")
	}
	if allowed, _ := e.ReserveRequest(1); allowed {
		t.Fatal("second reservation inside the window must be rejected")
	}
}

func TestReserveRequestAllowsExactlyOneConcurrent(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	const callers = 8
	var wg sync.WaitGroup
	var allowed atomic.Int32
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := e.ReserveRequest(1); ok {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Fatalf("expected exactly one reservation to win, got %d", got)
	}
}

func TestRollbackRequestReturnsTheWindow(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	if allowed, _ := e.ReserveRequest(1); !allowed {
		t.Fatal("reservation must be allowed")
	}
	e.RollbackRequest(1)

	if allowed, _ := e.ReserveRequest(1); !allowed {
		t.Fatal("a rolled-back window must be reservable again")
	}
}

func TestRollbackRequestRestoresThePriorStamp(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.RecordAttempt(1, 10, false)
	*now = now.Add(3 * time.Minute)

	if allowed, _ := e.ReserveRequest(1); !allowed {
		t.Fatal("window elapsed, reservation must be allowed")
	}
	e.RollbackRequest(1)

	// The rollback restores the old stamp, not a zero one: the elapsed
	// window stays elapsed.
	if allowed, _ := e.CanRequest(1); !allowed {
		t.Fatal("rollback must restore the pre-reservation timestamp")
	}
}

func TestReserveTargetSingleFlight(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	if allowed, _ := e.ReserveTarget(10); !allowed {
		t.Fatal("fresh target must be reservable")
	}
	if allowed, msg := e.ReserveTarget(10); allowed {
		t.Fatal("in-flight target must reject a second reservation")
	} else if !strings.Contains(msg, "busy") {
		t.Fatalf("rejection should report the target busy, got %q", msg)
	}

	// A failed attempt frees the target without starting its window.
	e.ReleaseTarget(10, false)
	if allowed, _ := e.ReserveTarget(10); !allowed {
		t.Fatal("failed attempt must not start the target window")
	}

	// A successful one starts it.
	e.ReleaseTarget(10, true)
	if allowed, _ := e.ReserveTarget(10); allowed {
		t.Fatal("successful attempt must start the target window")
	}

	*now = now.Add(3 * time.Second)
	if allowed, _ := e.ReserveTarget(10); !allowed {
		t.Fatal("target window must reopen at the boundary")
	}
}

func TestReserveTargetAllowsExactlyOneConcurrent(t *testing.T) {
	e, _ := newTestEngine(3*time.Minute, 3*time.Second)

	const callers = 8
	var wg sync.WaitGroup
	var allowed atomic.Int32
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := e.ReserveTarget(10); ok {
				allowed.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := allowed.Load(); got != 1 {
		t.Fatalf("expected exactly one reservation to win, got %d", got)
	}
}

func TestCleanupExpiredIsIdempotent(t *testing.T) {
	e, now := newTestEngine(3*time.Minute, 3*time.Second)

	e.Block(1, time.Minute)
	e.Block(2, time.Hour)

	*now = now.Add(10 * time.Minute)
	if cleared := e.CleanupExpired(); cleared != 1 {
		t.Fatalf("expected 1 cleared block, got %d", cleared)
	}
	if cleared := e.CleanupExpired(); cleared != 0 {
		t.Fatalf("second sweep must clear nothing, got %d", cleared)
	}

	if allowed, _ := e.CanRequest(2); allowed {
		t.Fatal("unexpired block must survive the sweep")
	}
}
