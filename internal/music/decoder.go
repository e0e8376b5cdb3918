package music

import (
	"context"
	"fmt"
	"io"
	"os"

	"layeh.com/gopus"
)

// opusRate is the decode rate. Opus always decodes cleanly at 48 kHz
// regardless of the encoder's input rate.
const opusRate = 48000

// maxFrameSamples is the largest Opus frame (120 ms at 48 kHz) per channel.
const maxFrameSamples = 5760

// DecodeOpusFile decodes an Ogg Opus file into mono PCM chunks at
// [opusRate]. The channel closes at end of file or when ctx is cancelled;
// decode errors after a successful open are logged into the stream's end
// (the channel just closes early, playback stops).
func DecodeOpusFile(ctx context.Context, path string) (<-chan []int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("music: open %s: %w", path, err)
	}

	ogg := newOggReader(f)
	head, err := readHeaders(ogg)
	if err != nil {
		f.Close()
		return nil, 0, err
	}

	dec, err := gopus.NewDecoder(opusRate, head.Channels)
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("music: opus decoder: %w", err)
	}

	out := make(chan []int16, 4)
	go func() {
		defer f.Close()
		defer close(out)
		skip := head.PreSkip
		for {
			pkt, err := ogg.nextPacket()
			if err != nil {
				return
			}
			pcm, err := dec.Decode(pkt, maxFrameSamples, false)
			if err != nil {
				return
			}
			mono := downmix(pcm, head.Channels)
			if skip > 0 {
				if skip >= len(mono) {
					skip -= len(mono)
					continue
				}
				mono = mono[skip:]
				skip = 0
			}
			select {
			case out <- mono:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, opusRate, nil
}

// readHeaders consumes OpusHead and the OpusTags packet.
func readHeaders(ogg *oggReader) (opusHead, error) {
	first, err := ogg.nextPacket()
	if err != nil {
		if err == io.EOF {
			return opusHead{}, errNotOgg
		}
		return opusHead{}, err
	}
	head, err := parseOpusHead(first)
	if err != nil {
		return opusHead{}, err
	}
	tags, err := ogg.nextPacket()
	if err != nil || !isOpusTags(tags) {
		return opusHead{}, fmt.Errorf("music: missing OpusTags packet")
	}
	return head, nil
}

// downmix folds interleaved stereo to mono; mono passes through.
func downmix(pcm []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(pcm))
		copy(out, pcm)
		return out
	}
	out := make([]int16, len(pcm)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(pcm[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
