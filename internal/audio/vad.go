package audio

// VADConfig tunes the energy check that decides whether a recording holds speech
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for a voiced frame
	MinSpeechFrames int     // consecutive voiced frames that count as speech
	FrameSize       int     // samples per frame
}

// DefaultVADConfig returns a default configuration for 48 kHz capture
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		MinSpeechFrames: 3,   // 60ms, shorter bursts are clicks
		FrameSize:       960, // 20ms at 48kHz
	}
}

// VADDetector tracks runs of voiced frames
type VADDetector struct {
	config *VADConfig
	run    int
	speech bool
}

// NewVADDetector creates a new detector; nil uses DefaultVADConfig
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame feeds one frame and reports whether speech has been seen so far
func (v *VADDetector) ProcessFrame(samples []int16) bool {
	if len(samples) > 0 && CalculateRMS(samples) > v.config.EnergyThreshold {
		v.run++
	} else {
		v.run = 0
	}
	if v.run >= max(v.config.MinSpeechFrames, 1) {
		v.speech = true
	}
	return v.speech
}

// SpeechDetected runs the detector over a whole recording frame by frame
func SpeechDetected(blob *Blob, config *VADConfig) bool {
	v := NewVADDetector(config)
	size := v.config.FrameSize
	if size <= 0 {
		size = len(blob.Samples)
	}
	for start := 0; start < len(blob.Samples); start += size {
		end := min(start+size, len(blob.Samples))
		if v.ProcessFrame(blob.Samples[start:end]) {
			return true
		}
	}
	return false
}
