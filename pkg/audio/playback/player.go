package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// chunkSamples is the write granularity. One canonical frame keeps the stop
// latency within a single frame period.
const chunkSamples = audio.FrameSamples

// Kind labels what the player is currently playing.
type Kind int

const (
	KindNone Kind = iota
	KindSpeech
	KindAlarm
)

// Player is the exclusive speaker owner. At most one playback is active at a
// time; Play while playing performs a clean stop of the current playback
// before starting the new one. All methods are safe for concurrent use.
type Player struct {
	sink   Sink
	logger *slog.Logger

	mu   sync.Mutex
	cur  *task
	kind Kind
}

// task is one owned playback goroutine. is_playing is derived from the task
// handle, never stored as a separate flag.
type task struct {
	stop chan struct{} // closed by Stop
	done chan struct{} // closed when the goroutine exits
	once sync.Once
}

func (t *task) requestStop() { t.once.Do(func() { close(t.stop) }) }

// New creates a Player that writes to sink.
func New(sink Sink, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{sink: sink, logger: logger}
}

// Play starts playing pcm at the given rate and returns immediately.
// A 20 ms fade-in is applied at the start and a fade-out on stop.
func (p *Player) Play(pcm []int16, rate int) {
	buf := make([]int16, len(pcm))
	copy(buf, pcm)
	audio.FadeIn(buf, rate, audio.DefaultFade)

	t := p.replace(KindSpeech)
	go func() {
		defer close(t.done)
		p.writeChunks(t, buf, rate)
	}()
}

// PlayStream plays chunks as they arrive on stream until the channel closes
// or the playback is stopped. Used by the streaming TTS path.
func (p *Player) PlayStream(stream <-chan []int16, rate int) {
	t := p.replace(KindSpeech)
	go func() {
		defer close(t.done)
		first := true
		for {
			select {
			case <-t.stop:
				return
			case chunk, ok := <-stream:
				if !ok {
					return
				}
				buf := make([]int16, len(chunk))
				copy(buf, chunk)
				if first {
					audio.FadeIn(buf, rate, audio.DefaultFade)
					first = false
				}
				if stopped := p.writeChunks(t, buf, rate); stopped {
					return
				}
			}
		}
	}()
}

// PlayAlarmRingtone loops the built-in chime for up to d (zero means a
// 30-second default), or until Stop.
func (p *Player) PlayAlarmRingtone(d time.Duration) {
	if d <= 0 {
		d = 30 * time.Second
	}
	cycle := ringtone(audio.SampleRate)

	t := p.replace(KindAlarm)
	go func() {
		defer close(t.done)
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			if stopped := p.writeChunks(t, cycle, audio.SampleRate); stopped {
				return
			}
		}
	}()
}

// writeChunks plays buf in frame-sized chunks, checking for a stop request
// between chunks. On stop it fades out the next chunk before returning.
// Reports whether the playback was stopped early.
func (p *Player) writeChunks(t *task, buf []int16, rate int) bool {
	for off := 0; off < len(buf); off += chunkSamples {
		end := off + chunkSamples
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[off:end]

		select {
		case <-t.stop:
			tail := make([]int16, len(chunk))
			copy(tail, chunk)
			audio.FadeOut(tail, rate, audio.DefaultFade)
			_ = p.sink.Write(tail, rate)
			return true
		default:
		}

		if err := p.sink.Write(chunk, rate); err != nil {
			p.logger.Error("playback write failed", "error", err)
			return true
		}
	}
	return false
}

// replace stops the current playback (waiting for its goroutine to exit) and
// installs a fresh task of the given kind.
func (p *Player) replace(kind Kind) *task {
	p.mu.Lock()
	old := p.cur
	p.mu.Unlock()

	if old != nil {
		old.requestStop()
		<-old.done
	}

	t := &task{stop: make(chan struct{}), done: make(chan struct{})}
	p.mu.Lock()
	p.cur = t
	p.kind = kind
	p.mu.Unlock()
	return t
}

// Stop halts the active playback, if any. When Stop returns, IsPlaying
// reports false.
func (p *Player) Stop() {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t == nil {
		return
	}
	t.requestStop()
	<-t.done
}

// IsPlaying reports whether a playback task is currently active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// IsAlarmPlaying reports whether the active playback is the alarm ringtone.
func (p *Player) IsAlarmPlaying() bool {
	p.mu.Lock()
	kind := p.kind
	p.mu.Unlock()
	return kind == KindAlarm && p.IsPlaying()
}

// Wait blocks until the active playback finishes or ctx is done.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	t := p.cur
	p.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops playback and closes the sink.
func (p *Player) Close() error {
	p.Stop()
	return p.sink.Close()
}
