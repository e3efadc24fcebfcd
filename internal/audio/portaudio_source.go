package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-button/internal/apperr"
)

// Initialize starts the PortAudio runtime. Call Terminate on shutdown.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return apperr.Configuration("audio", fmt.Errorf("failed to initialize PortAudio: %w", err))
	}
	return nil
}

// Terminate releases the PortAudio runtime
func Terminate() error {
	return portaudio.Terminate()
}

// DeviceInfo describes an audio device
type DeviceInfo struct {
	Index             int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// ListDevices enumerates the PortAudio devices. The runtime must be initialized.
func ListDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list audio devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		info := DeviceInfo{
			Index:             d.Index,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// InputDevice resolves an input device by index; a negative index selects the default input.
func InputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultInputDevice()
	}
	return deviceByIndex(index, func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 })
}

// OutputDevice resolves an output device by index; a negative index selects the default output.
func OutputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index < 0 {
		return portaudio.DefaultOutputDevice()
	}
	return deviceByIndex(index, func(d *portaudio.DeviceInfo) bool { return d.MaxOutputChannels > 0 })
}

func deviceByIndex(index int, usable func(*portaudio.DeviceInfo) bool) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Index == index {
			if !usable(d) {
				return nil, fmt.Errorf("audio device %d (%s) has no usable channels in this direction", index, d.Name)
			}
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio device %d not found", index)
}

// PortAudioSource reads mono int16 chunks from a blocking PortAudio input stream.
type PortAudioSource struct {
	deviceIndex int
	sampleRate  int
	frames      int
	logger      zerolog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
}

// NewPortAudioSource creates a source for the given device index (-1 for the default input)
func NewPortAudioSource(deviceIndex, sampleRate, framesPerBuffer int, logger zerolog.Logger) *PortAudioSource {
	return &PortAudioSource{
		deviceIndex: deviceIndex,
		sampleRate:  sampleRate,
		frames:      framesPerBuffer,
		logger:      logger.With().Str("component", "audio.portaudio_in").Logger(),
	}
}

// SampleRate returns the capture rate in Hz
func (s *PortAudioSource) SampleRate() int {
	return s.sampleRate
}

// Start opens and starts the input stream
func (s *PortAudioSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return fmt.Errorf("input stream already started")
	}

	dev, err := InputDevice(s.deviceIndex)
	if err != nil {
		return err
	}

	s.buf = make([]int16, s.frames)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.sampleRate),
		FramesPerBuffer: s.frames,
	}
	stream, err := portaudio.OpenStream(params, s.buf)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %s: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	s.stream = stream
	s.logger.Debug().Str("device", dev.Name).Int("sample_rate", s.sampleRate).Msg("Input stream started")
	return nil
}

// Read blocks for one buffer of frames. If ctx ends first the stream is aborted,
// which unblocks the pending read.
func (s *PortAudioSource) Read(ctx context.Context) ([]int16, error) {
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return nil, fmt.Errorf("input stream not started")
	}

	done := make(chan error, 1)
	go func() { done <- stream.Read() }()

	select {
	case err := <-done:
		if err == portaudio.InputOverflowed {
			s.logger.Warn().Msg("Input overflowed, samples were dropped")
		} else if err != nil {
			return nil, fmt.Errorf("failed to read input stream: %w", err)
		}
		chunk := make([]int16, len(s.buf))
		copy(chunk, s.buf)
		return chunk, nil

	case <-ctx.Done():
		if err := stream.Abort(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to abort input stream")
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			s.logger.Warn().Msg("Input read still blocked after abort")
		}
		return nil, ctx.Err()
	}
}

// Stop stops and closes the input stream
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	// Stop fails on an already aborted stream; Close still releases it.
	_ = stream.Stop()
	return stream.Close()
}
