package sync

import (
	"fmt"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(8)
	for i := 0; i < 5; i++ {
		if err := q.TryEnqueue(Command{Op: "sync", Collection: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	q.Close()

	i := 0
	for it := range q.Out() {
		cmd, err := it.Decode()
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		it.Done()
		if want := fmt.Sprintf("c%d", i); cmd.Collection != want {
			t.Fatalf("out of order: got %s want %s", cmd.Collection, want)
		}
		i++
	}
	if i != 5 {
		t.Fatalf("consumed %d commands, want 5", i)
	}
}

func TestItemDoneIdempotent(t *testing.T) {
	q := NewQueue(1)
	if err := q.TryEnqueue(Command{Op: "sync", Collection: "user"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	it := <-q.Out()
	it.Done()
	it.Done() // second call must be a no-op
}
