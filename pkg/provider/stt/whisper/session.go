package whisper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smartchat-ai/smartchat/pkg/provider/stt"
)

// inferFunc runs batch transcription over one buffered utterance of raw PCM.
// The HTTP provider posts to whisper-server; the native provider calls the
// whisper.cpp bindings.
type inferFunc func(ctx context.Context, pcm []byte) (string, error)

// sessionConfig carries the segmentation parameters shared by both providers.
type sessionConfig struct {
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int
	idleTimeout         time.Duration
}

// session implements stt.SessionHandle over any batch inference function.
//
// Whisper is a batch engine, so streaming is simulated: incoming PCM is
// buffered, an energy-based silence detector segments utterances, and each
// completed utterance is submitted as one inference call. A partial and a
// final carrying the same text are emitted per utterance; partials exist to
// drive live UI, finals are the authoritative dictation output.
//
// Sessions are bounded spans. After idleTimeout with no speech the session
// ends itself and closes both transcript channels, the same way platform
// dictation primitives stop listening on their own. Callers that want
// continuous capture open a new session when that happens.
type session struct {
	cfg   sessionConfig
	infer inferFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done  chan struct{} // closed by Close
	ended chan struct{} // closed by the loop on any exit path
	once  sync.Once
	wg    sync.WaitGroup
}

func newSession(cfg sessionConfig, infer inferFunc) *session {
	if cfg.channels <= 0 {
		cfg.channels = 1
	}
	s := &session{
		cfg:      cfg,
		infer:    infer,
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
	return s
}

// start launches the segmentation loop. Called once by the provider.
func (s *session) start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio for
// silence analysis and buffering. The chunk's sample rate and channel count
// must match the values agreed in StreamConfig. Returns an error once the
// session has ended, whether by Close or on its own.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.ended:
		return errors.New("whisper: session has ended")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.ended:
		return errors.New("whisper: session has ended")
	}
}

// Partials returns the interim transcript stream. Each value carries the same
// text as its corresponding final; the channel closes when the session ends.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the authoritative transcript stream. The channel closes when
// the session ends.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, flushes any pending speech audio for a last
// transcription, and closes both transcript channels. Calling Close more than
// once is safe and returns nil.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// run is the single goroutine owning all segmentation state. Confining the
// buffer, speech flag, and silence counter here avoids any extra locking.
func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.ended)
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte // accumulated PCM for the current utterance
		hadSpeech bool   // true once any high-energy chunk has been buffered
		silenceMs int    // consecutive silence accumulated after speech (ms)
	)

	bytesPerMs := s.cfg.sampleRate * s.cfg.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32 // 16 kHz mono 16-bit fallback
	}
	maxBufferBytes := s.cfg.maxBufferDurationMs * bytesPerMs

	flush := func(flushCtx context.Context) {
		pcm := buffer
		spoke := hadSpeech
		buffer = nil
		hadSpeech = false
		silenceMs = 0
		if len(pcm) == 0 || !spoke {
			return
		}

		text, err := s.infer(flushCtx, pcm)
		if err != nil || text == "" {
			return
		}

		// Non-blocking sends: the channels are buffered, and skipping beats
		// deadlocking during shutdown.
		select {
		case s.partials <- stt.Transcript{Text: text, IsFinal: false}:
		default:
		}
		select {
		case s.finals <- stt.Transcript{Text: text, IsFinal: true}:
		default:
		}
	}

	// The final flush runs on a fresh context so a cancelled ctx cannot
	// swallow the last utterance.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		flush(fc)
	}

	idle := time.NewTimer(s.cfg.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return

		case <-s.done:
			finalFlush()
			return

		case <-idle.C:
			// No speech for the whole idle window: the span is over.
			finalFlush()
			return

		case chunk := <-s.audioCh:
			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, s.cfg.sampleRate, s.cfg.channels)

			if rms < defaultRMSThreshold {
				// Leading silence before any speech is discarded; trailing
				// silence counts toward the utterance boundary.
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.cfg.silenceThresholdMs {
						flush(ctx)
					}
				}
				continue
			}

			hadSpeech = true
			silenceMs = 0
			buffer = append(buffer, chunk...)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.idleTimeout)
			if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
				flush(ctx)
			}
		}
	}
}

var _ stt.SessionHandle = (*session)(nil)
