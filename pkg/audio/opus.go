package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"layeh.com/gopus"
)

// Opus capture front-ends deliver 48 kHz audio at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// PacketSource delivers encoded Opus packets, one per read. Capture
// front-ends that compress on the wire (remote microphones, push-to-talk
// relays) implement this instead of [Source].
type PacketSource interface {
	// Packets returns the packet stream. The channel closes when the
	// front-end disconnects or ctx is cancelled.
	Packets(ctx context.Context) (<-chan []byte, error)

	// Close releases the front-end. Safe to call more than once.
	Close() error
}

// OpusSource adapts a [PacketSource] of Opus packets into a PCM [Source] by
// decoding each packet with a stateful gopus decoder. One decoder per source;
// Opus decoder state must not be shared across streams.
type OpusSource struct {
	packets  PacketSource
	channels int

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewOpusSource wraps packets as a PCM source decoding to the given channel
// count (1 or 2).
func NewOpusSource(packets PacketSource, channels int) (*OpusSource, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("audio: unsupported opus channel count %d", channels)
	}
	return &OpusSource{packets: packets, channels: channels}, nil
}

// Start begins decoding and returns the PCM frame stream. The channel closes
// when the packet stream ends or ctx is cancelled; Start may then be called
// again for a fresh span.
func (s *OpusSource) Start(ctx context.Context) (<-chan Frame, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, s.channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	packets, err := s.packets.Packets(runCtx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio: start opus packet stream: %w", err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	frames := make(chan Frame, 32)
	go func() {
		defer close(frames)
		defer cancel()
		start := time.Now()
		for pkt := range packets {
			pcm, err := dec.Decode(pkt, opusFrameSize, false)
			if err != nil {
				// Decoder state survives a bad packet; skip it.
				continue
			}
			select {
			case frames <- Frame{
				Data:       Int16sToBytes(pcm),
				SampleRate: opusSampleRate,
				Channels:   s.channels,
				Timestamp:  time.Since(start),
			}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	return frames, nil
}

// Close stops the current decode span and releases the packet source.
func (s *OpusSource) Close() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	return s.packets.Close()
}

var _ Source = (*OpusSource)(nil)

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
