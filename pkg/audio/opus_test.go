package audio

import (
	"context"
	"testing"
	"time"

	"layeh.com/gopus"
)

// packetQueue is a PacketSource fed from a fixed set of packets.
type packetQueue struct {
	queue      [][]byte
	closeCalls int
}

func (q *packetQueue) Packets(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for _, pkt := range q.queue {
			select {
			case out <- pkt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (q *packetQueue) Close() error {
	q.closeCalls++
	return nil
}

// encodePackets produces n valid Opus packets of 20 ms mono audio.
func encodePackets(t *testing.T, n int) [][]byte {
	t.Helper()
	enc, err := gopus.NewEncoder(48000, 1, gopus.Audio)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16(i % 256)
	}

	packets := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		pkt, err := enc.Encode(pcm, 960, 4000)
		if err != nil {
			t.Fatalf("Encode packet %d: %v", i, err)
		}
		packets = append(packets, pkt)
	}
	return packets
}

func collectFrames(t *testing.T, frames <-chan Frame) []Frame {
	t.Helper()
	var got []Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return got
			}
			got = append(got, f)
		case <-timeout:
			t.Fatalf("timed out draining frames; got %d so far", len(got))
		}
	}
}

func TestNewOpusSource_RejectsBadChannelCount(t *testing.T) {
	for _, channels := range []int{0, 3, -1} {
		if _, err := NewOpusSource(&packetQueue{}, channels); err == nil {
			t.Errorf("NewOpusSource(channels=%d) succeeded; want error", channels)
		}
	}
}

func TestOpusSource_DecodesPacketsToPCMFrames(t *testing.T) {
	q := &packetQueue{queue: encodePackets(t, 3)}
	s, err := NewOpusSource(q, 1)
	if err != nil {
		t.Fatalf("NewOpusSource: %v", err)
	}

	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collectFrames(t, frames)

	if len(got) != 3 {
		t.Fatalf("decoded %d frames; want 3", len(got))
	}
	for i, f := range got {
		if f.SampleRate != 48000 {
			t.Errorf("frame %d: SampleRate = %d; want 48000", i, f.SampleRate)
		}
		if f.Channels != 1 {
			t.Errorf("frame %d: Channels = %d; want 1", i, f.Channels)
		}
		// 960 samples of 16-bit mono PCM per 20 ms packet.
		if len(f.Data) != 960*2 {
			t.Errorf("frame %d: len(Data) = %d; want %d", i, len(f.Data), 960*2)
		}
	}
	if got[0].Timestamp > got[2].Timestamp {
		t.Errorf("timestamps not monotonic: %v then %v", got[0].Timestamp, got[2].Timestamp)
	}
}

func TestOpusSource_SkipsCorruptPackets(t *testing.T) {
	valid := encodePackets(t, 2)
	// A single 0xff byte is a code-3 packet missing its frame-count byte; the
	// decoder must reject it without poisoning the stream.
	q := &packetQueue{queue: [][]byte{valid[0], {0xff}, valid[1]}}
	s, err := NewOpusSource(q, 1)
	if err != nil {
		t.Fatalf("NewOpusSource: %v", err)
	}

	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collectFrames(t, frames)

	if len(got) != 2 {
		t.Fatalf("decoded %d frames; want 2 (corrupt packet skipped)", len(got))
	}
}

func TestOpusSource_CloseStopsStreamAndReleasesSource(t *testing.T) {
	// Endless packet supply; only Close ends the stream.
	q := &packetQueue{queue: encodePackets(t, 1024)}
	s, err := NewOpusSource(q, 1)
	if err != nil {
		t.Fatalf("NewOpusSource: %v", err)
	}

	frames, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-frames

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if q.closeCalls == 0 {
		t.Error("packet source not closed")
	}

	// The frame channel must drain and close after cancellation.
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("frame channel still open after Close")
		}
	}
}

func TestPCMByteConversion_RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 255, 256, -256, 32767, -32768}
	out := BytesToInt16s(Int16sToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d; want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d; want %d", i, out[i], in[i])
		}
	}
}
