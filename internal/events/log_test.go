package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Record(_ string, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func TestLogReadFromEmpty(t *testing.T) {
	l := NewLog("s", nil)
	got, off := l.ReadFrom(0)
	if len(got) != 0 || off != 0 {
		t.Fatalf("expected nothing at offset 0, got %d events, offset %d", len(got), off)
	}
}

func TestLogReadFromIncremental(t *testing.T) {
	l := NewLog("s", nil)
	l.Append(System("start"))
	l.Append(Step(1, "one"))

	got, off := l.ReadFrom(0)
	if len(got) != 2 || off != 2 {
		t.Fatalf("expected 2 events and offset 2, got %d and %d", len(got), off)
	}

	again, off2 := l.ReadFrom(off)
	if len(again) != 0 || off2 != 2 {
		t.Fatalf("expected nothing new, got %d events, offset %d", len(again), off2)
	}

	l.Append(Step(2, "two"))
	got, off = l.ReadFrom(off)
	if len(got) != 1 || off != 3 {
		t.Fatalf("expected 1 new event, got %d (offset %d)", len(got), off)
	}
	if sc, _ := got[0].Step(); sc.StepNumber != 2 {
		t.Errorf("step number = %d, want 2", sc.StepNumber)
	}
}

func TestLogReadFromOutOfRange(t *testing.T) {
	l := NewLog("s", nil)
	l.Append(System("a"))

	if got, off := l.ReadFrom(10); len(got) != 0 || off != 1 {
		t.Errorf("ReadFrom(10) = %d events, offset %d", len(got), off)
	}
	if got, off := l.ReadFrom(-3); len(got) != 1 || off != 1 {
		t.Errorf("ReadFrom(-3) = %d events, offset %d", len(got), off)
	}
}

func TestLogReadersSeeConsistentSequence(t *testing.T) {
	l := NewLog("s", nil)
	const total = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			l.Append(Step(i, fmt.Sprintf("step %d", i)))
		}
	}()

	readers := 4
	results := make([][]Event, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			var collected []Event
			offset := 0
			deadline := time.Now().Add(5 * time.Second)
			for len(collected) < total && time.Now().Before(deadline) {
				batch, next := l.ReadFrom(offset)
				collected = append(collected, batch...)
				offset = next
			}
			results[r] = collected
		}(r)
	}
	wg.Wait()

	for r, collected := range results {
		if len(collected) != total {
			t.Fatalf("reader %d collected %d events, want %d", r, len(collected), total)
		}
		for i, e := range collected {
			sc, ok := e.Step()
			if !ok || sc.StepNumber != i+1 {
				t.Fatalf("reader %d: event %d has step %d", r, i, sc.StepNumber)
			}
		}
	}
}

func TestLogSinkSeesAppendOrder(t *testing.T) {
	sink := &recordingSink{}
	l := NewLog("s", sink)
	l.Append(System("a"))
	l.Append(Error("b"))

	if len(sink.events) != 2 {
		t.Fatalf("sink got %d events, want 2", len(sink.events))
	}
	if sink.events[0].Type != KindSystem || sink.events[1].Type != KindError {
		t.Errorf("sink order = %s, %s", sink.events[0].Type, sink.events[1].Type)
	}
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) Record(string, Event) {
	s.entered <- struct{}{}
	<-s.release
}

func TestLogReadersNotBlockedBySink(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	l := NewLog("s", sink)

	done := make(chan struct{})
	go func() {
		l.Append(System("slow disk"))
		close(done)
	}()
	<-sink.entered

	read := make(chan int)
	go func() {
		batch, _ := l.ReadFrom(0)
		read <- len(batch)
	}()
	select {
	case n := <-read:
		if n != 1 {
			t.Errorf("read %d events while sink busy, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrom blocked on the sink")
	}

	close(sink.release)
	<-done
}

func TestLogAppendStampsTime(t *testing.T) {
	l := NewLog("s", nil)
	l.Append(Event{Type: KindSystem, Content: "x"})
	if l.All()[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestEventWireFormat(t *testing.T) {
	data, err := json.Marshal(Step(3, "Generating code..."))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "step" {
		t.Errorf("type = %v", raw["type"])
	}
	content, ok := raw["content"].(map[string]any)
	if !ok {
		t.Fatalf("content = %T", raw["content"])
	}
	if content["step_number"] != float64(3) || content["state"] != "executing" || content["content"] != "Generating code..." {
		t.Errorf("unexpected step content: %v", content)
	}

	data, _ = json.Marshal(Result("done", true, 5.0))
	raw = nil
	_ = json.Unmarshal(data, &raw)
	if raw["success"] != true || raw["executionTime"] != 5.0 {
		t.Errorf("unexpected result: %s", data)
	}

	data, _ = json.Marshal(SessionComplete())
	if string(data) != `{"type":"session_complete"}` {
		t.Errorf("session_complete = %s", data)
	}

	data, _ = json.Marshal(NotFound())
	if string(data) != `{"type":"error","message":"Session not found"}` {
		t.Errorf("not found = %s", data)
	}
}

func TestEventStepFromJSON(t *testing.T) {
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"step","content":{"step_number":2,"state":"executing","content":"x"}}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sc, ok := e.Step()
	if !ok || sc.StepNumber != 2 || sc.Content != "x" {
		t.Fatalf("Step() = %+v, %v", sc, ok)
	}
}
