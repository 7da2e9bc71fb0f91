package session

import (
	"testing"
	"time"

	"github.com/alxayo/svr/internal/svr/message"
)

func TestTryPushAndPopFront(t *testing.T) {
	q := newBoundedQueue(2)
	m := message.New(0)
	if !q.tryPush(m) {
		t.Fatalf("tryPush should succeed under capacity")
	}
	got, ok := q.popFront()
	if !ok || got != m {
		t.Fatalf("popFront returned unexpected result")
	}
}

func TestTryPushFailsWhenFull(t *testing.T) {
	q := newBoundedQueue(1)
	q.tryPush(message.New(0))
	if q.tryPush(message.New(0)) {
		t.Fatalf("tryPush should fail once capacity is reached")
	}
}

func TestDropOldest(t *testing.T) {
	q := newBoundedQueue(2)
	first := message.New(0)
	first.SetComponent(0, "first")
	second := message.New(0)
	second.SetComponent(0, "second")
	q.tryPush(first)
	q.tryPush(second)
	if !q.dropOldest() {
		t.Fatalf("dropOldest should evict one entry")
	}
	got, _ := q.popFront()
	if got.Component(0) != "second" {
		t.Fatalf("expected second message to remain, got %q", got.Component(0))
	}
}

func TestPushBlocksUntilSpaceFreed(t *testing.T) {
	q := newBoundedQueue(1)
	q.tryPush(message.New(0))

	done := make(chan bool, 1)
	go func() {
		done <- q.push(message.New(0))
	}()

	select {
	case <-done:
		t.Fatalf("push should have blocked while queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	q.popFront()
	select {
	case ok := <-done:
		if !ok {
			t.Fatalf("push should succeed once space frees")
		}
	case <-time.After(time.Second):
		t.Fatalf("push never unblocked")
	}
}

func TestPushTimeoutReturnsFalseWhenQueueStaysFull(t *testing.T) {
	q := newBoundedQueue(1)
	q.tryPush(message.New(0))

	start := time.Now()
	ok := q.pushTimeout(message.New(0), 20*time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Fatalf("pushTimeout should fail when the queue never drains")
	}
	if elapsed < 20*time.Millisecond {
		t.Fatalf("pushTimeout returned before its deadline elapsed: %s", elapsed)
	}
}

func TestPushTimeoutSucceedsWhenSpaceFreesBeforeDeadline(t *testing.T) {
	q := newBoundedQueue(1)
	q.tryPush(message.New(0))

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.popFront()
	}()

	if !q.pushTimeout(message.New(0), time.Second) {
		t.Fatalf("pushTimeout should succeed once space frees before the deadline")
	}
}

func TestCloseUnblocksWaiters(t *testing.T) {
	q := newBoundedQueue(1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.popFront()
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.close()
	select {
	case ok := <-done:
		if ok {
			t.Fatalf("popFront should report false on a closed, empty queue")
		}
	case <-time.After(time.Second):
		t.Fatalf("close did not wake popFront waiter")
	}
}
