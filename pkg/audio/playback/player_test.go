package playback

import (
	"context"
	"testing"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

func constantPCM(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestPlayLifecycle(t *testing.T) {
	sink := &MockSink{}
	p := New(sink, nil)

	p.Play(constantPCM(audio.FrameSamples*4, 1000), audio.SampleRate)
	if !p.IsPlaying() {
		t.Error("IsPlaying = false right after Play")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if p.IsPlaying() {
		t.Error("IsPlaying = true after playback finished")
	}
	if got := len(sink.Samples()); got != audio.FrameSamples*4 {
		t.Errorf("sink received %d samples, want %d", got, audio.FrameSamples*4)
	}
}

func TestPlayAppliesFadeIn(t *testing.T) {
	sink := &MockSink{}
	p := New(sink, nil)

	p.Play(constantPCM(audio.FrameSamples*2, 10000), audio.SampleRate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	got := sink.Samples()
	if got[0] != 0 {
		t.Errorf("first sample = %d, want 0 after fade-in", got[0])
	}
	if last := got[len(got)-1]; last != 10000 {
		t.Errorf("last sample = %d, want untouched 10000", last)
	}
}

// slowSink delays every write so tests can stop a playback mid-flight.
type slowSink struct {
	MockSink
	delay time.Duration
}

func (s *slowSink) Write(samples []int16, rate int) error {
	time.Sleep(s.delay)
	return s.MockSink.Write(samples, rate)
}

func TestStopPreemptsPlayback(t *testing.T) {
	sink := &slowSink{delay: 5 * time.Millisecond}
	p := New(sink, nil)

	p.Play(constantPCM(audio.FrameSamples*100, 1000), audio.SampleRate)
	time.Sleep(15 * time.Millisecond)
	p.Stop()

	if p.IsPlaying() {
		t.Error("IsPlaying = true after Stop returned")
	}
	if got := len(sink.Samples()); got >= audio.FrameSamples*100 {
		t.Errorf("stop did not preempt: %d samples played", got)
	}
}

func TestStopFadesOutTail(t *testing.T) {
	sink := &slowSink{delay: 5 * time.Millisecond}
	p := New(sink, nil)

	p.Play(constantPCM(audio.FrameSamples*100, 10000), audio.SampleRate)
	time.Sleep(15 * time.Millisecond)
	p.Stop()

	got := sink.Samples()
	if len(got) == 0 {
		t.Fatal("no samples written")
	}
	if last := got[len(got)-1]; last == 10000 {
		t.Errorf("last sample = %d, want faded toward zero", last)
	}
}

func TestPlayReplacesActivePlayback(t *testing.T) {
	sink := &MockSink{}
	p := New(sink, nil)

	p.Play(constantPCM(audio.FrameSamples*100, 1000), audio.SampleRate)
	p.Play(constantPCM(audio.FrameSamples, 2000), audio.SampleRate)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got := sink.Samples()
	if last := got[len(got)-1]; last != 2000 {
		t.Errorf("last sample = %d, want from the replacing playback", last)
	}
}

func TestPlayStreamEndsWhenChannelCloses(t *testing.T) {
	sink := &MockSink{}
	p := New(sink, nil)

	stream := make(chan []int16, 2)
	stream <- constantPCM(audio.FrameSamples, 1000)
	stream <- constantPCM(audio.FrameSamples, 1000)
	close(stream)

	p.PlayStream(stream, audio.SampleRate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := len(sink.Samples()); got != audio.FrameSamples*2 {
		t.Errorf("sink received %d samples, want %d", got, audio.FrameSamples*2)
	}
}

func TestAlarmRingtoneKind(t *testing.T) {
	sink := &slowSink{delay: 5 * time.Millisecond}
	p := New(sink, nil)

	p.PlayAlarmRingtone(time.Minute)
	if !p.IsAlarmPlaying() {
		t.Error("IsAlarmPlaying = false during ringtone")
	}
	p.Stop()
	if p.IsAlarmPlaying() {
		t.Error("IsAlarmPlaying = true after Stop")
	}
}

func TestRingtoneCycleShape(t *testing.T) {
	cycle := ringtone(audio.SampleRate)
	want := int(audio.SampleRate * 6 / 10) // 2x200ms beep + 2x100ms gap
	if len(cycle) != want {
		t.Errorf("cycle length = %d samples, want %d", len(cycle), want)
	}
	if cycle[0] != 0 {
		t.Errorf("cycle starts at %d, want 0 (faded)", cycle[0])
	}
}
