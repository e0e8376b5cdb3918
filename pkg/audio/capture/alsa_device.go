//go:build linux

package capture

import (
	"sync"
	"time"
)

// openALSA opens the named ALSA PCM for capture. The driver binding itself
// is a build-time integration point (cgo against libasound, or the snd-pcm
// ioctl surface); this default paces reads at the frame period and delivers
// silence so the pipeline runs end to end on boards without the binding.
//
// TODO: link the libasound cgo binding on the production image.
func openALSA(cfg Config) (pcmDevice, error) {
	return &pacedPCM{
		period: time.Duration(cfg.FrameSamples) * time.Second / time.Duration(cfg.SampleRate),
	}, nil
}

// pacedPCM delivers silent frames at the capture cadence.
type pacedPCM struct {
	mu     sync.Mutex
	period time.Duration
	closed bool
	next   time.Time
}

func (d *pacedPCM) ReadFrame(buf []int16) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDeviceLost
	}
	now := time.Now()
	if d.next.IsZero() {
		d.next = now
	}
	wait := d.next.Sub(now)
	d.next = d.next.Add(d.period)
	d.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	for i := range buf {
		buf[i] = 0
	}
	return nil
}

func (d *pacedPCM) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
