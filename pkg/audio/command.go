package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Default capture/playback parameters: 16 kHz mono, 20 ms frames — the format
// every bundled STT provider accepts without conversion.
const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	defaultFrameMs    = 20
)

// CommandSource captures PCM by spawning an external recorder process
// (arecord, sox, ffmpeg, …) and reading raw s16le audio from its stdout.
// There is no portable in-process microphone API, so shelling out to the
// platform recorder is the pragmatic route for a terminal client.
//
// Example:
//
//	src := audio.NewCommandSource("arecord",
//	    []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"},
//	    audio.Format{SampleRate: 16000, Channels: 1})
type CommandSource struct {
	name    string
	args    []string
	format  Format
	frameMs int

	mu     sync.Mutex
	cmd    *exec.Cmd
	cancel context.CancelFunc
}

// NewCommandSource creates a source that runs name with args and reads raw
// little-endian int16 PCM in the given format from the process stdout.
// A zero format defaults to 16 kHz mono.
func NewCommandSource(name string, args []string, format Format) *CommandSource {
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultSampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultChannels
	}
	return &CommandSource{
		name:    name,
		args:    args,
		format:  format,
		frameMs: defaultFrameMs,
	}
}

// Start spawns the recorder process and returns a channel of PCM frames.
// The channel closes when the process exits, ctx is cancelled, or Close is
// called. Start may be called again after the channel closes.
func (s *CommandSource) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return nil, errors.New("audio: command source already capturing")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, s.name, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("audio: start %s: %w", s.name, err)
	}

	s.cmd = cmd
	s.cancel = cancel

	frameBytes := s.format.SampleRate * s.format.Channels * 2 * s.frameMs / 1000
	frames := make(chan Frame, 32)

	go func() {
		defer close(frames)
		defer func() {
			_ = cmd.Wait()
			s.mu.Lock()
			if s.cmd == cmd {
				s.cmd = nil
				s.cancel = nil
			}
			s.mu.Unlock()
		}()

		start := time.Now()
		buf := make([]byte, frameBytes)
		for {
			n, err := io.ReadFull(stdout, buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				select {
				case frames <- Frame{
					Data:       data,
					SampleRate: s.format.SampleRate,
					Channels:   s.format.Channels,
					Timestamp:  time.Since(start),
				}:
				case <-runCtx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return frames, nil
}

// Close terminates the recorder process, ending the current capture span.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cmd = nil
	return nil
}

var _ Source = (*CommandSource)(nil)

// CommandSink plays PCM by spawning an external player process (aplay,
// paplay, ffplay, …) and writing raw s16le audio to its stdin. Flush kills
// the player so any buffered audio stops immediately; the next Write spawns
// a fresh process.
type CommandSink struct {
	name   string
	args   []string
	format Format

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewCommandSink creates a sink that pipes raw little-endian int16 PCM in the
// given format to name's stdin. A zero format defaults to 16 kHz mono.
func NewCommandSink(name string, args []string, format Format) *CommandSink {
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultSampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultChannels
	}
	return &CommandSink{name: name, args: args, format: format}
}

// Write queues a frame with the player, converting it to the sink format if
// needed and spawning the player process on first use.
func (k *CommandSink) Write(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.cmd == nil {
		cmd := exec.Command(k.name, k.args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("audio: stdin pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("audio: start %s: %w", k.name, err)
		}
		k.cmd = cmd
		k.stdin = stdin
	}

	n := Normalizer{Target: k.format}
	converted := n.Normalize(frame)
	if len(converted.Data) == 0 {
		return nil
	}
	if _, err := k.stdin.Write(converted.Data); err != nil {
		k.stopLocked()
		return fmt.Errorf("audio: write to %s: %w", k.name, err)
	}
	return nil
}

// Flush kills the player process, discarding all buffered audio. Idempotent.
func (k *CommandSink) Flush() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
	return nil
}

// Close stops playback and releases the player. Safe to call more than once.
func (k *CommandSink) Close() error {
	return k.Flush()
}

// stopLocked tears down the player process. Must be called with k.mu held.
func (k *CommandSink) stopLocked() {
	if k.cmd == nil {
		return
	}
	_ = k.stdin.Close()
	_ = k.cmd.Process.Kill()
	_ = k.cmd.Wait()
	k.cmd = nil
	k.stdin = nil
}

var _ Sink = (*CommandSink)(nil)
