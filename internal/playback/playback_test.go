package playback

import (
	"errors"
	"math"
	"testing"

	"github.com/faiface/beep"
	"github.com/gordonklaus/portaudio"

	"github.com/lexiqai/voice-button/internal/apperr"
	"github.com/lexiqai/voice-button/internal/audio"
	"github.com/lexiqai/voice-button/internal/tts"
)

func pcmAudio(samples []int16, rate int) *tts.Audio {
	pcm := audio.Int16ToBytes(samples)
	half := len(pcm) / 2
	return &tts.Audio{
		Chunks: [][]byte{pcm[:half], pcm[half:]},
		Format: tts.Format{Encoding: tts.EncodingPCM, SampleRate: rate, Channels: 1},
	}
}

func TestDecode_PCMAcrossChunks(t *testing.T) {
	s, format, err := Decode(pcmAudio([]int16{0, 16384, -16384, 32767}, 16000))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if format.SampleRate != 16000 || format.NumChannels != 1 {
		t.Errorf("Unexpected format %+v", format)
	}

	buf := make([][2]float64, 8)
	n, ok := s.Stream(buf)
	if !ok || n != 4 {
		t.Fatalf("Expected 4 samples, got %d (ok=%v)", n, ok)
	}
	want := []float64{0, 0.5, -0.5, 32767.0 / 32768}
	for i, w := range want {
		if math.Abs(buf[i][0]-w) > 1e-9 || buf[i][0] != buf[i][1] {
			t.Errorf("Sample %d: expected %v on both channels, got %v", i, w, buf[i])
		}
	}

	if n, ok := s.Stream(buf); ok || n != 0 {
		t.Errorf("Expected exhausted stream, got n=%d ok=%v", n, ok)
	}
}

func TestDecode_WAV(t *testing.T) {
	data, err := audio.EncodeWAV(make([]int16, 480), 24000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV() failed: %v", err)
	}
	s, format, err := Decode(&tts.Audio{
		Chunks: [][]byte{data},
		Format: tts.Format{Encoding: tts.EncodingWAV},
	})
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	defer s.Close()

	if format.SampleRate != 24000 {
		t.Errorf("Expected 24000 Hz, got %d", format.SampleRate)
	}
	total := 0
	buf := make([][2]float64, 100)
	for {
		n, ok := s.Stream(buf)
		if !ok {
			break
		}
		total += n
	}
	if total != 480 {
		t.Errorf("Expected 480 samples, got %d", total)
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		audio *tts.Audio
	}{
		{"nil", nil},
		{"empty", &tts.Audio{Format: tts.Format{Encoding: tts.EncodingMP3}}},
		{"garbage mp3", &tts.Audio{Chunks: [][]byte{[]byte("not an mp3")}, Format: tts.Format{Encoding: tts.EncodingMP3}}},
		{"pcm without rate", &tts.Audio{Chunks: [][]byte{{0, 0}}, Format: tts.Format{Encoding: tts.EncodingPCM}}},
		{"truncated pcm sample", &tts.Audio{Chunks: [][]byte{{0, 0}, {1}}, Format: tts.Format{Encoding: tts.EncodingPCM, SampleRate: 16000}}},
		{"unknown encoding", &tts.Audio{Chunks: [][]byte{{0, 0}}, Format: tts.Format{Encoding: "ogg"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.audio)
			if !apperr.Is(err, apperr.KindService) {
				t.Errorf("Expected ServiceError, got %v", err)
			}
		})
	}
}

func TestPump_PadsLastBuffer(t *testing.T) {
	src, _, _ := Decode(pcmAudio([]int16{16384, 16384, 16384, 16384, 16384}, 8000))
	out := make([]float32, 4)

	var writes [][]float32
	n, err := pump(src, out, func() error {
		writes = append(writes, append([]float32(nil), out...))
		return nil
	})
	if err != nil {
		t.Fatalf("pump() failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 frames, got %d", n)
	}
	if len(writes) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(writes))
	}
	last := writes[1]
	if last[0] != 0.5 || last[1] != 0 || last[3] != 0 {
		t.Errorf("Expected one sample then zero padding, got %v", last)
	}
}

func TestPump_UnderflowIsNotFatal(t *testing.T) {
	src, _, _ := Decode(pcmAudio(make([]int16, 8), 8000))
	out := make([]float32, 4)

	calls := 0
	_, err := pump(src, out, func() error {
		calls++
		if calls == 1 {
			return portaudio.OutputUnderflowed
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected underflow to be tolerated, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 writes, got %d", calls)
	}
}

func TestPump_WriteError(t *testing.T) {
	src, _, _ := Decode(pcmAudio(make([]int16, 8), 8000))
	boom := errors.New("device gone")

	_, err := pump(src, make([]float32, 4), func() error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Expected write error, got %v", err)
	}
}

func TestResampled(t *testing.T) {
	src, _, _ := Decode(pcmAudio(make([]int16, 100), 8000))
	if got := resampled(src, 8000, 8000); got != beep.Streamer(src) {
		t.Error("Expected the source when rates match")
	}

	up := resampled(src, 8000, 16000)
	total := 0
	buf := make([][2]float64, 64)
	for {
		n, ok := up.Stream(buf)
		if !ok {
			break
		}
		total += n
	}
	if total < 180 || total > 220 {
		t.Errorf("Expected about 200 resampled frames, got %d", total)
	}
}
