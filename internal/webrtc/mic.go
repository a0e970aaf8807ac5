package webrtc

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
)

const micPageInterval = 20 * time.Millisecond

// sampleWriter is the part of a local track the microphone pump feeds.
type sampleWriter interface {
	WriteSample(media.Sample) error
}

type microphone struct {
	sid      string
	stopOnce sync.Once
	stopped  chan struct{}
}

func (m *microphone) stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// pump paces Ogg pages from src onto track until src ends or stop is called.
func (m *microphone) pump(src io.ReadCloser, track sampleWriter, logger zerolog.Logger) {
	defer src.Close()

	ogg, _, err := oggreader.NewWith(src)
	if err != nil {
		logger.Warn().Err(err).Msg("microphone source is not Ogg/Opus")
		return
	}

	ticker := time.NewTicker(micPageInterval)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
		}

		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			logger.Info().Msg("microphone source ended")
			return
		}
		if err != nil {
			logger.Warn().Err(err).Msg("read microphone page")
			return
		}
		if bytes.HasPrefix(page, []byte("OpusTags")) {
			continue
		}

		var samples uint64
		if header.GranulePosition > lastGranule {
			samples = header.GranulePosition - lastGranule
		}
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusClockRate * float64(time.Second))

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			logger.Warn().Err(err).Msg("write microphone sample")
			return
		}
	}
}
