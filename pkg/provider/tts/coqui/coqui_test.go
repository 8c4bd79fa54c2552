package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smartchat-ai/smartchat/pkg/provider/tts"
)

// makeWAV builds a minimal RIFF/WAVE container around pcm.
func makeWAV(t *testing.T, pcm []byte, sampleRate, channels int) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func drain(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	var out []byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, chunk...)
		case <-timeout:
			t.Fatal("timed out draining audio channel")
		}
	}
}

func TestSynthesizeStream_StandardMode(t *testing.T) {
	var (
		mu    sync.Mutex
		texts []string
	)
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, apiTTSEndpoint)
		}
		mu.Lock()
		texts = append(texts, r.URL.Query().Get("text"))
		mu.Unlock()
		w.Write(makeWAV(t, pcm, 22050, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	textCh := make(chan string, 4)
	textCh <- "First sentence. Second"
	textCh <- " one!"
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.Voice{ID: "p225"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	out := drain(t, audioCh)
	if len(out) != 2*len(pcm) {
		t.Fatalf("got %d PCM bytes, want %d", len(out), 2*len(pcm))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 {
		t.Fatalf("server saw %d requests, want 2: %v", len(texts), texts)
	}
	if texts[0] != "First sentence." || texts[1] != "Second one!" {
		t.Fatalf("sentence split = %v", texts)
	}
}

func TestSynthesizeStream_ResamplesToOutputRate(t *testing.T) {
	// 8 samples at 44100 should roughly halve at 22050.
	pcm := make([]byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(makeWAV(t, pcm, 44100, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	textCh := make(chan string, 1)
	textCh <- "Hello."
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.Voice{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	out := drain(t, audioCh)
	if len(out) != 8 {
		t.Fatalf("got %d resampled bytes, want 8", len(out))
	}
}

func TestSynthesizeStream_XTTSRequiresVoiceID(t *testing.T) {
	p, err := New("http://localhost:8002", WithAPIMode(APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.SynthesizeStream(context.Background(), nil, tts.Voice{}); err == nil {
		t.Fatal("expected error for empty voice.ID in XTTS mode")
	}
}

func TestSynthesizeStream_XTTSMode(t *testing.T) {
	pcm := []byte{9, 0, 8, 0}
	var gotBody xttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, ttsEndpoint)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write(makeWAV(t, pcm, 22050, 1))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	textCh := make(chan string, 1)
	textCh <- "Hallo."
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.Voice{ID: "anna.wav"})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	out := drain(t, audioCh)
	if !bytes.Equal(out, pcm) {
		t.Fatalf("PCM = %v, want %v", out, pcm)
	}
	if gotBody.SpeakerWav != "anna.wav" || gotBody.Language != "de" {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestSynthesizeStream_ServerErrorClosesEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	textCh := make(chan string, 1)
	textCh <- "Hello."
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.Voice{})
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}
	if out := drain(t, audioCh); len(out) != 0 {
		t.Fatalf("got %d bytes after server error, want 0", len(out))
	}
}

func TestListVoices_StandardMultiSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detailsEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, detailsEndpoint)
		}
		json.NewEncoder(w).Encode(detailsResponse{
			ModelName: "vctk",
			Speakers:  []string{"p240", "p225"},
		})
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "p225" || voices[1].ID != "p240" {
		t.Fatalf("voices not sorted: %v", voices)
	}
	if voices[0].Provider != "coqui" {
		t.Fatalf("Provider = %q, want coqui", voices[0].Provider)
	}
}

func TestListVoices_StandardSingleSpeaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(detailsResponse{ModelName: "ljspeech"})
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "ljspeech" {
		t.Fatalf("voices = %v", voices)
	}
}

func TestListVoices_XTTS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			t.Errorf("path = %q, want %q", r.URL.Path, studioSpeakersEndpoint)
		}
		w.Write([]byte(`{"Claribel Dervla": {}, "Ana Florence": {}}`))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].Name != "Ana Florence" {
		t.Fatalf("voices = %v", voices)
	}
}

func TestOutputFormat(t *testing.T) {
	p, err := New("http://localhost:5002", WithOutputSampleRate(16000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f := p.OutputFormat()
	if f.SampleRate != 16000 || f.Channels != 1 {
		t.Fatalf("OutputFormat = %+v, want 16000/1", f)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestSentenceBoundary(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"Hello. World", 5},
		{"Hello", -1},
		{"Dr. Smith said 3.14 is pi", 2}, // "Dr." is followed by a space
		{"Version 3.14 rocks", -1},
		{"Done!", 4},
		{"Really? Yes", 6},
	}
	for _, tc := range cases {
		if got := sentenceBoundary(tc.in); got != tc.want {
			t.Errorf("sentenceBoundary(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseWAV_RejectsGarbage(t *testing.T) {
	if _, err := parseWAV([]byte("not a wav file at all")); err == nil {
		t.Fatal("expected error for non-RIFF input")
	}
	if _, err := parseWAV(makeWAV(t, nil, 22050, 1)[:10]); err == nil {
		t.Fatal("expected error for truncated input")
	}
}

func TestResampleMono16(t *testing.T) {
	src := []byte{0, 0, 100, 0, 0, 0, 100, 0} // 4 samples
	out := resampleMono16(src, 44100, 22050)
	if len(out) != 4 { // 2 samples
		t.Fatalf("got %d bytes, want 4", len(out))
	}
	if same := resampleMono16(src, 22050, 22050); !bytes.Equal(same, src) {
		t.Fatal("equal rates must return input unchanged")
	}
}
