package voice

import "testing"

func TestEventStreamKeepsEndWhenFull(t *testing.T) {
	s := newEventStream()
	for i := 0; i < recognitionBuffer; i++ {
		if !s.emit(Result("partial", false)) {
			t.Fatalf("emit(interim %d) = false", i)
		}
	}
	s.emit(Result("I feel okay", true))
	s.emit(End())

	got := drain(s.events)
	if len(got) != recognitionBuffer {
		t.Fatalf("events = %d, want %d", len(got), recognitionBuffer)
	}
	final, end := got[len(got)-2], got[len(got)-1]
	if final.Type != RecognitionResult || !final.Final || final.Transcript != "I feel okay" {
		t.Fatalf("second to last event = %+v, want the final result", final)
	}
	if end.Type != RecognitionEnd {
		t.Fatalf("last event = %+v, want end", end)
	}
}

func TestEventStreamKeepsEndWithoutInterimResults(t *testing.T) {
	s := newEventStream()
	for i := 0; i < recognitionBuffer; i++ {
		s.emit(Result("final", true))
	}
	s.emit(End())

	got := drain(s.events)
	if len(got) != recognitionBuffer || got[len(got)-1].Type != RecognitionEnd {
		t.Fatalf("events = %d last=%+v, want %d ending with end", len(got), got[len(got)-1], recognitionBuffer)
	}
	if s.emit(Result("late", true)) {
		t.Fatalf("emit() after end = true, want false")
	}
}
