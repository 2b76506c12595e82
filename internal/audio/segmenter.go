package audio

// Classifier decides whether one frame contains speech.
type Classifier interface {
	IsSpeech(frame []byte) bool
}

// EnergyClassifier is the default frame classifier: pure RMS energy
// against a fixed gate.
type EnergyClassifier struct {
	Gate float64
}

func (c EnergyClassifier) IsSpeech(frame []byte) bool {
	return RMS(frame) > c.Gate
}

// Segment is one contiguous run of speech frames ready for recognition.
type Segment struct {
	PCM    []byte
	Frames int
	RMS    float64
}

// SegmenterConfig tunes the endpoint detector.
type SegmenterConfig struct {
	RMSGate          float64
	WindowFrames     int
	MinSpeechFrames  int
	MaxSilenceFrames int
	MinSegmentFrames int
}

// DefaultSegmenterConfig mirrors the production tuning for 100ms frames
// of 16kHz PCM16 mono.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		RMSGate:          180,
		WindowFrames:     30,
		MinSpeechFrames:  3,
		MaxSilenceFrames: 10,
		MinSegmentFrames: 5,
	}
}

type segmenterState int

const (
	stateSilent segmenterState = iota
	stateSpeaking
)

// Segmenter is a push-model speech endpoint detector. Frames go in one at
// a time; completed segments come out in arrival order, non-overlapping.
type Segmenter struct {
	cfg        SegmenterConfig
	classifier Classifier

	state      segmenterState
	windowRMS  []float64 // sliding RMS window, activation strictness check
	speechRun  int
	silenceRun int
	pending    [][]byte // frames buffered while deciding SILENT -> SPEAKING

	accumulated  []byte
	frameCount   int
	speechFrames int
	rmsSum       float64
}

func NewSegmenter(cfg SegmenterConfig, classifier Classifier) *Segmenter {
	if cfg.WindowFrames <= 0 {
		cfg.WindowFrames = 30
	}
	if cfg.MinSegmentFrames <= 0 {
		cfg.MinSegmentFrames = 5
	}
	if classifier == nil {
		classifier = EnergyClassifier{Gate: cfg.RMSGate}
	}
	return &Segmenter{cfg: cfg, classifier: classifier}
}

// Push feeds one frame. Returns a completed segment when the detector
// observes enough trailing silence after a valid speech run.
func (s *Segmenter) Push(frame []byte) (Segment, bool) {
	rms := RMS(frame)
	s.pushWindow(rms)

	// Below the gate is silence regardless of the classifier verdict.
	isSpeech := rms >= s.cfg.RMSGate && s.classifier.IsSpeech(frame)

	switch s.state {
	case stateSilent:
		if !isSpeech {
			s.speechRun = 0
			s.pending = nil
			return Segment{}, false
		}
		s.speechRun++
		s.pending = append(s.pending, frame)
		if s.speechRun >= s.cfg.MinSpeechFrames && s.windowedRMS(s.speechRun) >= s.cfg.RMSGate {
			s.state = stateSpeaking
			s.silenceRun = 0
			for _, f := range s.pending {
				s.accumulate(f)
				s.speechFrames++
			}
			s.pending = nil
		}
		return Segment{}, false

	case stateSpeaking:
		s.accumulate(frame)
		if isSpeech {
			s.speechFrames++
			s.silenceRun = 0
			return Segment{}, false
		}
		s.silenceRun++
		if s.silenceRun < s.cfg.MaxSilenceFrames {
			return Segment{}, false
		}
		return s.finish()
	}
	return Segment{}, false
}

// Flush terminates an in-progress segment, validating it the same way a
// silence release would. Used when recording stops mid-speech.
func (s *Segmenter) Flush() (Segment, bool) {
	if s.state != stateSpeaking {
		s.Reset()
		return Segment{}, false
	}
	return s.finish()
}

// Reset drops all buffered state and returns to SILENT.
func (s *Segmenter) Reset() {
	s.state = stateSilent
	s.windowRMS = s.windowRMS[:0]
	s.speechRun = 0
	s.silenceRun = 0
	s.pending = nil
	s.accumulated = nil
	s.frameCount = 0
	s.speechFrames = 0
	s.rmsSum = 0
}

func (s *Segmenter) finish() (Segment, bool) {
	frames := s.frameCount
	speech := s.speechFrames
	avgRMS := 0.0
	if frames > 0 {
		avgRMS = s.rmsSum / float64(frames)
	}
	pcm := s.accumulated
	s.Reset()

	// Reject truncated or noise-only candidates. Trailing silence frames
	// count toward the average but not toward the length minimum.
	if speech < s.cfg.MinSegmentFrames || avgRMS < s.cfg.RMSGate*0.7 {
		return Segment{}, false
	}
	return Segment{PCM: NormalizeGain(pcm), Frames: frames, RMS: avgRMS}, true
}

func (s *Segmenter) accumulate(frame []byte) {
	s.accumulated = append(s.accumulated, frame...)
	s.frameCount++
	s.rmsSum += RMS(frame)
}

// windowedRMS averages the most recent n window entries.
func (s *Segmenter) windowedRMS(n int) float64 {
	if n <= 0 || len(s.windowRMS) == 0 {
		return 0
	}
	if n > len(s.windowRMS) {
		n = len(s.windowRMS)
	}
	var sum float64
	for _, v := range s.windowRMS[len(s.windowRMS)-n:] {
		sum += v
	}
	return sum / float64(n)
}

func (s *Segmenter) pushWindow(rms float64) {
	s.windowRMS = append(s.windowRMS, rms)
	if len(s.windowRMS) > s.cfg.WindowFrames {
		s.windowRMS = s.windowRMS[1:]
	}
}
