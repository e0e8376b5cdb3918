package conversation

import (
	"fmt"
	"testing"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/vad"
)

func TestDialogueBoundsHistory(t *testing.T) {
	d := NewDialogue(2)
	for i := 0; i < 5; i++ {
		d.AddUser(fmt.Sprintf("question %d", i))
		d.AddAssistant(fmt.Sprintf("answer %d", i))
	}

	msgs := d.Messages()
	if len(msgs) != 4 {
		t.Fatalf("history length = %d, want 4", len(msgs))
	}
	if msgs[0].Content != "question 3" {
		t.Errorf("oldest kept turn = %q, want question 3", msgs[0].Content)
	}
	if msgs[3].Content != "answer 4" {
		t.Errorf("newest turn = %q, want answer 4", msgs[3].Content)
	}

	d.Reset()
	if d.Len() != 0 {
		t.Errorf("Len after Reset = %d", d.Len())
	}
}

func TestDialogueMessagesIsACopy(t *testing.T) {
	d := NewDialogue(4)
	d.AddUser("hello")
	msgs := d.Messages()
	msgs[0].Content = "mutated"
	if d.Messages()[0].Content != "hello" {
		t.Error("Messages exposed internal storage")
	}
}

func TestQuietWindow(t *testing.T) {
	at := func(hhmm string) time.Time {
		tm, err := time.Parse("15:04", hhmm)
		if err != nil {
			t.Fatalf("bad test time %q", hhmm)
		}
		return time.Date(2026, 8, 24, tm.Hour(), tm.Minute(), 0, 0, time.Local)
	}

	tests := []struct {
		name       string
		start, end string
		probe      string
		want       bool
	}{
		{"inside plain window", "13:00", "15:00", "14:00", true},
		{"before plain window", "13:00", "15:00", "12:59", false},
		{"end is exclusive", "13:00", "15:00", "15:00", false},
		{"start is inclusive", "13:00", "15:00", "13:00", true},
		{"wrap late evening", "22:30", "07:00", "23:45", true},
		{"wrap early morning", "22:30", "07:00", "06:30", true},
		{"wrap daytime outside", "22:30", "07:00", "12:00", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w, err := NewQuietWindow(tc.start, tc.end)
			if err != nil {
				t.Fatalf("NewQuietWindow: %v", err)
			}
			if got := w.Contains(at(tc.probe)); got != tc.want {
				t.Errorf("Contains(%s) = %v, want %v", tc.probe, got, tc.want)
			}
		})
	}
}

func TestQuietWindowZeroValueNeverMatches(t *testing.T) {
	var w QuietWindow
	if w.Contains(time.Now()) {
		t.Error("zero window matched")
	}
}

func TestQuietWindowRejectsBadTime(t *testing.T) {
	if _, err := NewQuietWindow("25:00", "07:00"); err == nil {
		t.Error("invalid clock accepted")
	}
}

// fixedClass always returns the configured class.
type fixedClass struct{ speech bool }

func (c fixedClass) Classify(audio.Frame) vad.Class {
	if c.speech {
		return vad.Speech
	}
	return vad.Silence
}

func speechFrame() audio.Frame {
	samples := make([]int16, audio.FrameSamples)
	for i := range samples {
		samples[i] = 6000
	}
	return audio.Frame{Samples: samples}
}

func TestBargeDetectorConfirmsSustainedSpeech(t *testing.T) {
	b := NewBargeDetector(BargeConfig{
		SampleEvery: 2,
		MinSpeech:   4 * audio.FramePeriod,
		Tail:        8 * audio.FramePeriod,
	}, fixedClass{speech: true})

	confirmed := -1
	for i := 0; i < 10; i++ {
		if b.Observe(speechFrame()) {
			confirmed = i
			break
		}
	}
	// Every second frame is sampled and credits two frame periods, so the
	// fourth frame reaches the four-period threshold.
	if confirmed != 3 {
		t.Errorf("confirmed at frame %d, want 3", confirmed)
	}
}

func TestBargeDetectorIgnoresSilence(t *testing.T) {
	b := NewBargeDetector(BargeConfig{SampleEvery: 2, MinSpeech: 2 * audio.FramePeriod}, fixedClass{speech: false})
	for i := 0; i < 50; i++ {
		if b.Observe(speechFrame()) {
			t.Fatalf("barge confirmed on silence at frame %d", i)
		}
	}
}

func TestBargeDetectorTail(t *testing.T) {
	b := NewBargeDetector(BargeConfig{SampleEvery: 100, MinSpeech: time.Hour, Tail: 3 * audio.FramePeriod}, fixedClass{})

	for i := 0; i < 6; i++ {
		f := audio.Frame{Samples: make([]int16, audio.FrameSamples)}
		for j := range f.Samples {
			f.Samples[j] = int16(i)
		}
		b.Observe(f)
	}

	tail := b.Tail()
	if want := 3 * audio.FrameSamples; len(tail) != want {
		t.Fatalf("tail length = %d, want %d", len(tail), want)
	}
	if tail[0] != 3 || tail[len(tail)-1] != 5 {
		t.Errorf("tail keeps frames %d..%d, want 3..5", tail[0], tail[len(tail)-1])
	}

	b.Reset()
	if len(b.Tail()) != 0 {
		t.Error("tail not cleared by Reset")
	}
}

func TestBargeDetectorSkipsErrorFrames(t *testing.T) {
	b := NewBargeDetector(BargeConfig{SampleEvery: 1, MinSpeech: audio.FramePeriod}, fixedClass{speech: true})
	if b.Observe(audio.Frame{Err: fmt.Errorf("underrun")}) {
		t.Error("error frame confirmed a barge-in")
	}
	if len(b.Tail()) != 0 {
		t.Error("error frame entered the tail")
	}
}

func TestPhrasesWithDefaultsFillsGaps(t *testing.T) {
	p := Phrases{Farewell: "bye now"}.withDefaults()
	if p.Farewell != "bye now" {
		t.Errorf("explicit field overwritten: %q", p.Farewell)
	}
	if len(p.WakeAck) == 0 || p.Trouble == "" || p.Retry == nil {
		t.Error("defaults not filled")
	}
	if len(p.WarmupSet()) < 8 {
		t.Errorf("WarmupSet = %d phrases, want the full fixed set", len(p.WarmupSet()))
	}
}
