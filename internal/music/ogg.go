// Package music plays local Ogg Opus files through the shared speaker,
// ducking under conversation and resuming afterwards.
package music

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// errNotOgg marks a file without an Ogg capture pattern.
var errNotOgg = errors.New("music: not an ogg stream")

// oggReader assembles logical packets from an Ogg page stream. Only the
// single-stream layout produced by opusenc and ffmpeg is supported.
type oggReader struct {
	r *bufio.Reader

	// pending holds segment payloads of the current page.
	pending []segment

	// partial accumulates a packet continued across pages.
	partial []byte
}

func newOggReader(r io.Reader) *oggReader {
	return &oggReader{r: bufio.NewReaderSize(r, 64<<10)}
}

// nextPacket returns the next complete logical packet, or io.EOF.
func (o *oggReader) nextPacket() ([]byte, error) {
	for {
		if len(o.pending) > 0 {
			seg := o.pending[0]
			o.pending = o.pending[1:]
			o.partial = append(o.partial, seg.payload...)
			if seg.last {
				pkt := o.partial
				o.partial = nil
				return pkt, nil
			}
			continue
		}
		if err := o.readPage(); err != nil {
			return nil, err
		}
	}
}

// segment is one lacing-table entry's payload; last marks packet end.
type segment struct {
	payload []byte
	last    bool
}

// readPage parses one Ogg page into o.pending.
func (o *oggReader) readPage() error {
	var header [27]byte
	if _, err := io.ReadFull(o.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return io.EOF
		}
		return err
	}
	if !bytes.Equal(header[0:4], []byte("OggS")) {
		return errNotOgg
	}
	if header[4] != 0 {
		return fmt.Errorf("music: unsupported ogg version %d", header[4])
	}

	nsegs := int(header[26])
	lacing := make([]byte, nsegs)
	if _, err := io.ReadFull(o.r, lacing); err != nil {
		return fmt.Errorf("music: ogg lacing table: %w", err)
	}

	for _, l := range lacing {
		payload := make([]byte, int(l))
		if _, err := io.ReadFull(o.r, payload); err != nil {
			return fmt.Errorf("music: ogg segment: %w", err)
		}
		// A lacing value below 255 terminates the packet; exactly 255 means
		// it continues in the next segment or page.
		o.pending = append(o.pending, segment{payload: payload, last: l < 255})
	}
	return nil
}

// opusHead is the mandatory first packet of an Ogg Opus stream.
type opusHead struct {
	Channels   int
	PreSkip    int
	InputRate  uint32
	OutputGain int16
}

// parseOpusHead validates the OpusHead magic and extracts the fields the
// decoder needs.
func parseOpusHead(pkt []byte) (opusHead, error) {
	if len(pkt) < 19 || !bytes.Equal(pkt[0:8], []byte("OpusHead")) {
		return opusHead{}, errors.New("music: missing OpusHead packet")
	}
	return opusHead{
		Channels:   int(pkt[9]),
		PreSkip:    int(binary.LittleEndian.Uint16(pkt[10:12])),
		InputRate:  binary.LittleEndian.Uint32(pkt[12:16]),
		OutputGain: int16(binary.LittleEndian.Uint16(pkt[16:18])),
	}, nil
}

// isOpusTags reports whether the packet is the metadata packet that follows
// OpusHead; it carries no audio and is skipped.
func isOpusTags(pkt []byte) bool {
	return len(pkt) >= 8 && bytes.Equal(pkt[0:8], []byte("OpusTags"))
}
