package webrtc

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

type sampleRecorder struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (s *sampleRecorder) WriteSample(sample media.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *sampleRecorder) snapshot() []media.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]media.Sample(nil), s.samples...)
}

func oggStream(t *testing.T, payloads ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := oggwriter.NewWith(&buf, opusClockRate, opusChannels)
	if err != nil {
		t.Fatalf("oggwriter: %v", err)
	}
	for i, p := range payloads {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i + 1), Timestamp: uint32((i + 1) * 960)},
			Payload: p,
		}
		if err := w.WriteRTP(pkt); err != nil {
			t.Fatalf("write rtp: %v", err)
		}
	}
	return buf.Bytes()
}

func TestMicrophonePump_DeliversPages(t *testing.T) {
	payloads := [][]byte{{0x01, 0x02}, {0x03, 0x04}, {0x05, 0x06}}
	src := io.NopCloser(bytes.NewReader(oggStream(t, payloads...)))
	rec := &sampleRecorder{}
	mic := &microphone{sid: "TR_mic", stopped: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		mic.pump(src, rec, zerolog.Nop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish")
	}

	got := rec.snapshot()
	if len(got) != len(payloads) {
		t.Fatalf("got %d samples, want %d", len(got), len(payloads))
	}
	for i, s := range got {
		if !bytes.Equal(s.Data, payloads[i]) {
			t.Errorf("sample %d = %x, want %x", i, s.Data, payloads[i])
		}
	}
}

func TestMicrophonePump_Stop(t *testing.T) {
	payloads := make([][]byte, 200)
	for i := range payloads {
		payloads[i] = []byte{byte(i), 0xaa}
	}
	src := io.NopCloser(bytes.NewReader(oggStream(t, payloads...)))
	rec := &sampleRecorder{}
	mic := &microphone{stopped: make(chan struct{})}

	done := make(chan struct{})
	go func() {
		mic.pump(src, rec, zerolog.Nop())
		close(done)
	}()
	mic.stop()
	mic.stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	if n := len(rec.snapshot()); n >= len(payloads) {
		t.Errorf("expected pump to stop early, wrote %d samples", n)
	}
}

func TestMicrophonePump_RejectsNonOgg(t *testing.T) {
	rec := &sampleRecorder{}
	mic := &microphone{stopped: make(chan struct{})}
	mic.pump(io.NopCloser(bytes.NewReader([]byte("not an ogg stream"))), rec, zerolog.Nop())

	if len(rec.snapshot()) != 0 {
		t.Error("expected no samples")
	}
}
