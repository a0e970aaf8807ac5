package webrtc

import (
	"fmt"
	"io"
	"sync"

	"agentvoice/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog"
)

const (
	opusClockRate = 48000
	opusChannels  = 2
)

// rtpReader is the part of *pion.TrackRemote a playback sink reads from.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// remoteTrack is a subscribed LiveKit track.
type remoteTrack struct {
	sid      string
	kind     domain.TrackKind
	src      rtpReader
	playback io.Writer
	logger   zerolog.Logger
}

func newRemoteTrack(sid string, track *pion.TrackRemote, playback io.Writer, logger zerolog.Logger) *remoteTrack {
	t := &remoteTrack{
		sid:      sid,
		kind:     domain.TrackKindVideo,
		playback: playback,
		logger:   logger,
	}
	if track != nil {
		t.src = track
		if track.Kind() == pion.RTPCodecTypeAudio {
			t.kind = domain.TrackKindAudio
		}
	}
	return t
}

func (t *remoteTrack) SID() string            { return t.sid }
func (t *remoteTrack) Kind() domain.TrackKind { return t.kind }

// Attach starts writing the track to the playback output.
func (t *remoteTrack) Attach() (domain.AudioSink, error) {
	if t.src == nil {
		return nil, fmt.Errorf("track %s has no media", t.sid)
	}
	return newOggSink(t.src, t.playback, t.logger)
}

// writerOnly hides io.Closer so closing the Ogg writer leaves out open.
type writerOnly struct{ io.Writer }

// oggSink copies RTP packets from a track into an Ogg/Opus stream.
type oggSink struct {
	logger zerolog.Logger

	mu     sync.Mutex
	w      *oggwriter.OggWriter
	closed bool
	done   chan struct{}
}

func newOggSink(src rtpReader, out io.Writer, logger zerolog.Logger) (*oggSink, error) {
	if out == nil {
		out = io.Discard
	}
	w, err := oggwriter.NewWith(writerOnly{out}, opusClockRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}
	s := &oggSink{logger: logger, w: w, done: make(chan struct{})}
	go s.run(src)
	return s, nil
}

func (s *oggSink) run(src rtpReader) {
	defer close(s.done)
	for {
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if err != io.EOF {
				s.logger.Debug().Err(err).Msg("playback read ended")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if err := s.w.WriteRTP(pkt); err != nil {
			s.logger.Warn().Err(err).Msg("playback write")
		}
		s.mu.Unlock()
	}
}

// Close stops playback. It is safe to call more than once.
func (s *oggSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}
