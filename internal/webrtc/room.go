// Package webrtc joins LiveKit rooms with the server SDK and adapts room
// callbacks into domain signals.
package webrtc

import (
	"context"
	"fmt"
	"io"
	"sync"

	"agentvoice/native/internal/domain"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Options configure the rooms created by a factory.
type Options struct {
	// Playback receives the agent's audio as an Ogg/Opus stream. Nil drops it.
	Playback io.Writer
	// OpenMicrophone returns an Ogg/Opus source for the local microphone
	// track. Nil publishes a silent track.
	OpenMicrophone func() (io.ReadCloser, error)
	Logger         zerolog.Logger
}

// NewRoomFactory returns a factory producing one LiveKit room per call.
func NewRoomFactory(opts Options) domain.RoomFactory {
	return func() domain.Room {
		return NewRoom(opts)
	}
}

// Room is a domain.Room backed by a LiveKit connection.
type Room struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	handler func(domain.Signal)
	lk      *lksdk.Room
	joined  bool
	backlog []domain.Signal
	mic     *microphone
	present map[string]bool

	disconnectOnce sync.Once
}

// NewRoom creates an unconnected room.
func NewRoom(opts Options) *Room {
	return &Room{
		opts:   opts,
		logger: opts.Logger,
	}
}

// Subscribe sets the signal handler. It must be called before Connect.
func (r *Room) Subscribe(h func(domain.Signal)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Connect joins the room at url with token. It returns once the join has
// completed or ctx is done.
func (r *Room) Connect(ctx context.Context, url, token string) error {
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return fmt.Errorf("create nack responder: %w", err)
	}

	type result struct {
		room *lksdk.Room
		err  error
	}
	done := make(chan result, 1)

	r.logger.Info().Str("url", url).Msg("joining room")
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(url, token, r.callback(),
			lksdk.WithAutoSubscribe(true),
			lksdk.WithInterceptors([]interceptor.Factory{responder}),
		)
		done <- result{room: room, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		go func() {
			if late := <-done; late.room != nil {
				late.room.Disconnect()
			}
		}()
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("join room: %w", res.err)
	}

	r.mu.Lock()
	r.lk = res.room
	r.mu.Unlock()
	r.logger.Info().Str("room", res.room.Name()).Str("identity", res.room.LocalParticipant.Identity()).Msg("room joined")

	var existing []domain.Participant
	for _, p := range res.room.GetRemoteParticipants() {
		existing = append(existing, participant(p))
	}
	r.completeJoin(existing)
	return nil
}

// completeJoin delivers RoomConnected, then participants already present
// (they never fire OnParticipantConnected), then any signals held back
// during the join.
func (r *Room) completeJoin(existing []domain.Participant) {
	r.mu.Lock()
	queued := []domain.Signal{domain.RoomConnected{}}
	for _, p := range existing {
		sig := domain.ParticipantJoined{Participant: p}
		if r.admitLocked(sig) {
			queued = append(queued, sig)
		}
	}
	queued = append(queued, r.backlog...)
	r.backlog = nil
	h := r.handler
	r.mu.Unlock()

	// Signals arriving while the queue is delivered join the backlog, so
	// order is kept until it drains.
	for {
		if h != nil {
			for _, sig := range queued {
				h(sig)
			}
		}
		r.mu.Lock()
		if len(r.backlog) == 0 {
			r.joined = true
			r.mu.Unlock()
			return
		}
		queued, r.backlog = r.backlog, nil
		r.mu.Unlock()
	}
}

// Disconnect leaves the room. The disconnected signal is delivered once.
func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	lk := r.lk
	mic := r.mic
	r.mic = nil
	r.mu.Unlock()

	if mic != nil {
		mic.stop()
	}
	if lk != nil {
		lk.Disconnect()
	}
	r.disconnected()
	return nil
}

// SetMicrophoneEnabled publishes or unpublishes the local microphone track.
func (r *Room) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lk == nil {
		return fmt.Errorf("room not connected")
	}
	if !enabled {
		if r.mic == nil {
			return nil
		}
		mic := r.mic
		r.mic = nil
		mic.stop()
		if err := r.lk.LocalParticipant.UnpublishTrack(mic.sid); err != nil {
			return fmt.Errorf("unpublish microphone: %w", err)
		}
		r.logger.Info().Msg("microphone disabled")
		return nil
	}
	if r.mic != nil {
		return nil
	}

	track, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: opusClockRate, Channels: opusChannels},
		"audio", "microphone",
	)
	if err != nil {
		return fmt.Errorf("create microphone track: %w", err)
	}
	pub, err := r.lk.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "microphone",
		Source: livekit.TrackSource_MICROPHONE,
	})
	if err != nil {
		return fmt.Errorf("publish microphone: %w", err)
	}

	mic := &microphone{sid: pub.SID(), stopped: make(chan struct{})}
	if r.opts.OpenMicrophone != nil {
		src, err := r.opts.OpenMicrophone()
		if err != nil {
			_ = r.lk.LocalParticipant.UnpublishTrack(pub.SID())
			return fmt.Errorf("open microphone: %w", err)
		}
		go mic.pump(src, track, r.logger)
	}
	r.mic = mic
	r.logger.Info().Str("track", pub.SID()).Msg("microphone enabled")
	return nil
}

func (r *Room) callback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *pion.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.logger.Debug().Str("track", pub.SID()).Str("participant", rp.Identity()).Str("kind", track.Kind().String()).Msg("track subscribed")
				r.emit(domain.TrackSubscribed{
					Track:       newRemoteTrack(pub.SID(), track, r.opts.Playback, r.logger),
					Participant: participant(rp),
				})
			},
			OnTrackUnsubscribed: func(track *pion.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.logger.Debug().Str("track", pub.SID()).Str("participant", rp.Identity()).Msg("track unsubscribed")
				r.emit(domain.TrackUnsubscribed{
					Track:       newRemoteTrack(pub.SID(), track, nil, r.logger),
					Participant: participant(rp),
				})
			},
			OnTranscriptionReceived: func(segments []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
				sig := domain.TranscriptionReceived{Segments: make([]domain.Segment, 0, len(segments))}
				if p != nil {
					sig.Participant = domain.Participant{Identity: p.Identity(), Metadata: p.Metadata()}
				}
				for _, s := range segments {
					if s == nil {
						continue
					}
					sig.Segments = append(sig.Segments, domain.Segment{ID: s.ID, Text: s.Text, Final: s.Final})
				}
				r.emit(sig)
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			r.logger.Info().Str("participant", rp.Identity()).Msg("participant joined")
			r.emit(domain.ParticipantJoined{Participant: participant(rp)})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			r.logger.Info().Str("participant", rp.Identity()).Msg("participant left")
			r.emit(domain.ParticipantLeft{Participant: participant(rp)})
		},
		OnDisconnected: r.connectionLost,
	}
}

func (r *Room) connectionLost() {
	r.logger.Warn().Msg("room connection lost")
	r.mu.Lock()
	mic := r.mic
	r.mic = nil
	r.mu.Unlock()
	if mic != nil {
		mic.stop()
	}
	r.disconnected()
}

// emit delivers sig, holding it back until the join has completed.
func (r *Room) emit(sig domain.Signal) {
	r.mu.Lock()
	if !r.admitLocked(sig) {
		r.mu.Unlock()
		return
	}
	if !r.joined {
		r.backlog = append(r.backlog, sig)
		r.mu.Unlock()
		return
	}
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(sig)
	}
}

// admitLocked drops a join for an identity that is already present. The
// SDK can report a participant both in the join snapshot and through
// OnParticipantConnected.
func (r *Room) admitLocked(sig domain.Signal) bool {
	switch s := sig.(type) {
	case domain.ParticipantJoined:
		if r.present == nil {
			r.present = make(map[string]bool)
		}
		if r.present[s.Participant.Identity] {
			r.logger.Debug().Str("participant", s.Participant.Identity).Msg("duplicate join dropped")
			return false
		}
		r.present[s.Participant.Identity] = true
	case domain.ParticipantLeft:
		delete(r.present, s.Participant.Identity)
	}
	return true
}

// disconnected reports the end of the room once. A loss before the join
// completes is delivered after RoomConnected.
func (r *Room) disconnected() {
	r.disconnectOnce.Do(func() {
		r.emit(domain.RoomDisconnected{})
	})
}

func participant(rp *lksdk.RemoteParticipant) domain.Participant {
	if rp == nil {
		return domain.Participant{}
	}
	return domain.Participant{Identity: rp.Identity(), Metadata: rp.Metadata()}
}
