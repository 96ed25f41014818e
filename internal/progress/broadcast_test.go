package progress

import (
	"testing"
	"time"
)

func TestBroadcasterDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	first, unsubFirst := b.Subscribe()
	second, unsubSecond := b.Subscribe()
	defer unsubFirst()
	defer unsubSecond()

	b.Publish(State{Stage: StageSubtitles, Status: StatusProcessing})
	for _, ch := range []<-chan State{first, second} {
		select {
		case got := <-ch:
			if got.Stage != StageSubtitles {
				t.Fatalf("unexpected state %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive state")
		}
	}
}

func TestBroadcasterNeverBlocksAndKeepsLatest(t *testing.T) {
	b := NewBroadcaster(2)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i <= 100; i++ {
			b.Publish(State{Stage: StageUpload, Status: StatusProcessing, Progress: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	var last State
	for len(ch) > 0 {
		last = <-ch
	}
	if last.Progress != 100 {
		t.Fatalf("expected latest snapshot to survive, got %+v", last)
	}
}

func TestBroadcasterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(1)
	ch, unsubscribe := b.Subscribe()
	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}
	b.Publish(State{Stage: StageEditing})
}

func TestBroadcasterLateSubscriberGetsLatest(t *testing.T) {
	b := NewBroadcaster(1)
	b.Publish(State{Stage: StageAnalysis, Status: StatusCompleted, Progress: 30})

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()
	got := <-ch
	if got.Progress != 30 {
		t.Fatalf("expected replay of latest, got %+v", got)
	}

	b.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed by Close")
	}

	after, unsub := b.Subscribe()
	defer unsub()
	final, ok := <-after
	if !ok || final.Progress != 30 {
		t.Fatalf("expected final snapshot after close, got %+v ok=%v", final, ok)
	}
	if _, ok := <-after; ok {
		t.Fatal("expected closed channel after final snapshot")
	}
}

func TestUploadProgressAndFinal(t *testing.T) {
	if got := UploadProgress(50); got != 95 {
		t.Fatalf("expected 95, got %v", got)
	}
	if got := UploadProgress(150); got != 100 {
		t.Fatalf("expected clamp to 100, got %v", got)
	}
	if !(State{Stage: StageUpload, Status: StatusCompleted}).Final() {
		t.Fatal("completed upload should be final")
	}
	if (State{Stage: StageEditing, Status: StatusCompleted}).Final() {
		t.Fatal("completed editing should not be final")
	}
	if !(State{Stage: StageAnalysis, Status: StatusCancelled}).Final() {
		t.Fatal("cancelled should be final")
	}
}
