package sound

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"
)

// DefaultSampleRate is the rate the speaker is opened at. Files recorded at
// other rates are resampled.
const DefaultSampleRate = beep.SampleRate(44100)

// SpeakerPlayer plays files from a directory on the host's audio device.
type SpeakerPlayer struct {
	dir  string
	rate beep.SampleRate
	log  *zap.Logger

	initOnce sync.Once
	initErr  error
}

// NewSpeakerPlayer creates a player resolving relative resources against dir.
func NewSpeakerPlayer(dir string, logger *zap.Logger) *SpeakerPlayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpeakerPlayer{dir: dir, rate: DefaultSampleRate, log: logger}
}

func (s *SpeakerPlayer) init() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(s.rate, s.rate.N(time.Second/10))
		if s.initErr != nil {
			s.initErr = fmt.Errorf("error initializing speaker: %w", s.initErr)
		}
	})
	return s.initErr
}

// Probe opens the device and plays a short silence.
func (s *SpeakerPlayer) Probe(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}
	return s.stream(ctx, beep.Silence(s.rate.N(100*time.Millisecond)))
}

// Play decodes an mp3 or wav file and blocks until it finishes.
func (s *SpeakerPlayer) Play(ctx context.Context, resource string) error {
	path := s.resolve(resource)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open audio file: %w", err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("unsupported audio format: %s", resource)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	defer streamer.Close()

	if err := s.init(); err != nil {
		return err
	}

	var src beep.Streamer = streamer
	if format.SampleRate != s.rate {
		src = beep.Resample(4, format.SampleRate, s.rate, streamer)
	}
	s.log.Debug("playing audio file", zap.String("path", path))
	return s.stream(ctx, src)
}

func (s *SpeakerPlayer) stream(ctx context.Context, src beep.Streamer) error {
	done := make(chan struct{})
	speaker.Play(beep.Seq(src, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

func (s *SpeakerPlayer) resolve(resource string) string {
	if filepath.IsAbs(resource) || s.dir == "" {
		return resource
	}
	return filepath.Join(s.dir, filepath.FromSlash(resource))
}
