package rolesync

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyLock(t *testing.T) {
	l := newKeyLock()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock(a): %v", err)
	}

	unlockB, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock(b) should not wait on a: %v", err)
	}
	unlockB()

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Lock on held key error = %v, want DeadlineExceeded", err)
	}

	acquired := make(chan func())
	go func() {
		unlock, err := l.Lock(ctx, "a")
		if err != nil {
			t.Errorf("Lock(a) after release: %v", err)
			close(acquired)
			return
		}
		acquired <- unlock
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	case <-time.After(10 * time.Millisecond):
	}

	unlockA()
	unlockA() // second call is a no-op

	select {
	case unlock := <-acquired:
		if unlock == nil {
			t.FailNow()
		}
		unlock()
	case <-time.After(time.Second):
		t.Fatalf("waiter never acquired the released key")
	}

	if n := l.size(); n != 0 {
		t.Fatalf("size = %d after all releases, want 0", n)
	}
}
