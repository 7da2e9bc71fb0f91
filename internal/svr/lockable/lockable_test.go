package lockable

import (
	"testing"
	"time"
)

func TestLockUnlock(t *testing.T) {
	l := New()
	l.Lock()
	done := make(chan struct{})
	go func() {
		l.Lock()
		l.Unlock()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("second Lock should block while held")
	case <-time.After(20 * time.Millisecond):
	}
	l.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("second Lock never acquired after Unlock")
	}
}

func TestWaitSignal(t *testing.T) {
	l := New()
	woke := make(chan struct{})
	go func() {
		l.Lock()
		defer l.Unlock()
		l.Wait()
		close(woke)
	}()
	time.Sleep(20 * time.Millisecond)
	l.Lock()
	l.Signal()
	l.Unlock()
	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatalf("waiter never woke")
	}
}

func TestBroadcastWakesAll(t *testing.T) {
	l := New()
	const n = 4
	woke := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			l.Lock()
			defer l.Unlock()
			l.Wait()
			woke <- struct{}{}
		}()
	}
	time.Sleep(30 * time.Millisecond)
	l.Lock()
	l.Broadcast()
	l.Unlock()
	for i := 0; i < n; i++ {
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatalf("not all waiters woke")
		}
	}
}
