package webrtc

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"agentvoice/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// chanReader yields queued packets and then io.EOF.
type chanReader struct {
	packets chan *rtp.Packet
}

func (c *chanReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	pkt, ok := <-c.packets
	if !ok {
		return nil, nil, io.EOF
	}
	return pkt, nil, nil
}

// lockedBuffer is a bytes.Buffer safe for the sink goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func opusPacket(seq uint16, ts uint32) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: seq, Timestamp: ts, SSRC: 1},
		Payload: []byte{0xfc, 0xff, 0xfe, byte(seq)},
	}
}

func TestOggSink_WritesStream(t *testing.T) {
	src := &chanReader{packets: make(chan *rtp.Packet, 4)}
	out := &lockedBuffer{}

	sink, err := newOggSink(src, out, zerolog.Nop())
	if err != nil {
		t.Fatalf("newOggSink: %v", err)
	}
	headerLen := len(out.Bytes())
	if !bytes.HasPrefix(out.Bytes(), []byte("OggS")) {
		t.Fatalf("expected Ogg header, got %q", out.Bytes())
	}

	src.packets <- opusPacket(1, 960)
	src.packets <- opusPacket(2, 1920)
	close(src.packets)
	<-sink.done

	if len(out.Bytes()) <= headerLen {
		t.Error("expected packets to be written after the header")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// closeRecorder fails the test if the sink closes the playback output.
type closeRecorder struct {
	lockedBuffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestOggSink_LeavesOutputOpen(t *testing.T) {
	src := &chanReader{packets: make(chan *rtp.Packet)}
	out := &closeRecorder{}

	sink, err := newOggSink(src, out, zerolog.Nop())
	if err != nil {
		t.Fatalf("newOggSink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(src.packets)

	select {
	case <-sink.done:
	case <-time.After(time.Second):
		t.Fatal("sink goroutine did not exit")
	}
	if out.closed {
		t.Error("playback output must stay open")
	}
}

func TestRemoteTrack_WithoutMedia(t *testing.T) {
	track := newRemoteTrack("TR_1", nil, nil, zerolog.Nop())

	if track.SID() != "TR_1" {
		t.Errorf("SID = %q", track.SID())
	}
	if track.Kind() != domain.TrackKindVideo {
		t.Errorf("Kind = %s", track.Kind())
	}
	if _, err := track.Attach(); err == nil {
		t.Error("expected attach error for a track without media")
	}
}

func TestRemoteTrack_AttachDiscardsWithoutPlayback(t *testing.T) {
	src := &chanReader{packets: make(chan *rtp.Packet, 1)}
	track := &remoteTrack{sid: "TR_2", kind: domain.TrackKindAudio, src: src, logger: zerolog.Nop()}

	sink, err := track.Attach()
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	src.packets <- opusPacket(1, 960)
	close(src.packets)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
