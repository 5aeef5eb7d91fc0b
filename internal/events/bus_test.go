package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan MotionEvent, 1)

	unsub := bus.Subscribe(func(e MotionEvent) {
		received <- e
	})
	defer unsub()

	event := MotionEvent{Camera: "front_door", Motion: true, Timestamp: time.Now()}
	bus.Publish(event)

	got := <-received
	if got.Camera != event.Camera || !got.Motion {
		t.Errorf("Expected %+v, got %+v", event, got)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan StateChangedEvent, 1)
	received2 := make(chan StateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e StateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e StateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(StateChangedEvent{Camera: "garage", From: "idle", To: "connecting"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan ProcessCrashedEvent, 1)

	unsub := bus.Subscribe(func(e ProcessCrashedEvent) {
		received <- e
	})

	bus.Publish(ProcessCrashedEvent{Camera: "garage", Process: "proxy", ExitCode: 1})
	<-received

	unsub()

	bus.Publish(ProcessCrashedEvent{Camera: "garage", Process: "proxy", ExitCode: 1})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	motionReceived := make(chan bool, 1)
	statusReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ MotionEvent) {
		motionReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ StatusEvent) {
		statusReceived <- true
	})
	defer unsub2()

	bus.Publish(MotionEvent{Camera: "front_door"})
	<-motionReceived

	select {
	case <-statusReceived:
		t.Fatal("Status subscriber should NOT have received MotionEvent")
	case <-time.After(10 * time.Millisecond):
	}

	bus.Publish(StatusEvent{Device: "front_door"})
	<-statusReceived

	select {
	case <-motionReceived:
		t.Fatal("Motion subscriber should NOT have received StatusEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New()
	received := make(chan int, 100)

	unsub := bus.Subscribe(func(e StatusEvent) {
		received <- e.Status["seq"].(int)
	})
	defer unsub()

	for i := range 100 {
		bus.Publish(StatusEvent{Device: "cam", Status: map[string]any{"seq": i}})
	}
	for i := range 100 {
		if got := <-received; got != i {
			t.Fatalf("event %d arrived as %d", i, got)
		}
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ PictureEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(PictureEvent{Camera: "cam", Data: []byte{0xff, 0xd8}})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_UnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected a non-nil unsubscribe func")
	}
	unsub()
}

func TestEventJSONSerialization(t *testing.T) {
	ts := time.Date(2025, 1, 27, 10, 30, 0, 0, time.UTC)
	data, err := json.Marshal(StateChangedEvent{Camera: "garage", From: "idle", To: "streaming", Timestamp: ts})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"camera":"garage","from":"idle","to":"streaming","timestamp":"2025-01-27T10:30:00Z"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestEventTypesAreDistinct(t *testing.T) {
	seen := map[uint32]string{}
	for name, ev := range map[string]Event{
		"status":  StatusEvent{},
		"motion":  MotionEvent{},
		"picture": PictureEvent{},
		"state":   StateChangedEvent{},
		"crash":   ProcessCrashedEvent{},
	} {
		if other, ok := seen[ev.Type()]; ok {
			t.Errorf("%s and %s share type %d", name, other, ev.Type())
		}
		seen[ev.Type()] = name
	}
}
