// Package segmenter implements the phrase-segmentation engine: an
// energy-based voice-activity detector with adaptive thresholding that
// turns a stream of fixed-size audio buffers into discrete spoken
// phrases.
package segmenter

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/phrasecap/internal/logging"
	"github.com/lokutor-ai/phrasecap/pkg/audio"
)

// Segmenter is a stateful phrase detector parameterised by Config. It
// is safe for one worker goroutine to call Record/AdjustForAmbientNoise/
// Listen against a single AudioSource at a time; EnergyThreshold
// (read via Threshold, written internally) may additionally be read
// from any other goroutine while a listen loop is running, per the
// shared energy_threshold design note — it is stored as an
// atomic.Uint64 holding the float64's bit pattern, since the worker is
// its sole writer and external readers may observe a stale value.
type Segmenter struct {
	cfg    Config
	energy atomic.Uint64 // bit pattern of a float64, see loadEnergy/storeEnergy
	log    logging.Logger
}

// New builds a Segmenter from cfg, which must already satisfy
// Config.Validate.
func New(cfg Config, log logging.Logger) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NoOpLogger{}
	}
	s := &Segmenter{cfg: cfg, log: log}
	s.storeEnergy(cfg.EnergyThreshold)
	return s, nil
}

func (s *Segmenter) loadEnergy() float64 {
	return math.Float64frombits(s.energy.Load())
}

func (s *Segmenter) storeEnergy(v float64) {
	s.energy.Store(math.Float64bits(v))
}

// Threshold returns the current adaptive energy threshold. Safe to call
// concurrently with a running Listen loop; may return a value that is
// about to change.
func (s *Segmenter) Threshold() float64 {
	return s.loadEnergy()
}

func secondsPerBuffer(src audio.Source) float64 {
	return float64(src.ChunkSize()) / float64(src.SampleRate())
}

func ceilBuffers(d time.Duration, secondsPerBuffer float64) int {
	if secondsPerBuffer <= 0 {
		return 0
	}
	n := int(math.Ceil(d.Seconds() / secondsPerBuffer))
	if n < 0 {
		return 0
	}
	return n
}

// Record performs purely time-driven capture (spec §4.2.1): skip the
// first offset seconds (if positive), then append buffers until
// duration seconds have been captured or the source hits EOF. A
// non-positive duration means "until EOF".
func (s *Segmenter) Record(src audio.Source, duration, offset time.Duration) (audio.Data, error) {
	spb := secondsPerBuffer(src)

	if offset > 0 {
		skipBuffers := ceilBuffers(offset, spb)
		for i := 0; i < skipBuffers; i++ {
			buf, err := src.Read()
			if err != nil {
				return audio.Data{}, err
			}
			if len(buf) == 0 {
				break
			}
		}
	}

	ring := newUnboundedBufferRing()
	var elapsed time.Duration
	for duration <= 0 || elapsed < duration {
		buf, err := src.Read()
		if err != nil {
			return audio.Data{}, err
		}
		if len(buf) == 0 {
			break
		}
		ring.append(buf)
		elapsed += time.Duration(spb * float64(time.Second))
	}

	return audio.New(ring.concat(), src.SampleRate(), src.SampleWidth()), nil
}

// AdjustForAmbientNoise calibrates EnergyThreshold against ambient noise
// over up to duration seconds of source audio (spec §4.2.2),
// unconditionally — independent of Config.DynamicEnergyThreshold.
func (s *Segmenter) AdjustForAmbientNoise(src audio.Source, duration time.Duration) error {
	spb := secondsPerBuffer(src)
	damping := math.Pow(s.cfg.DynamicEnergyAdjustmentDamping, spb)

	var elapsed time.Duration
	for elapsed < duration {
		buf, err := src.Read()
		if err != nil {
			return err
		}
		if len(buf) == 0 {
			break
		}
		energy := rmsEnergy(buf, src.SampleWidth())
		target := energy * s.cfg.DynamicEnergyRatio
		s.storeEnergy(s.loadEnergy()*damping + target*(1-damping))
		elapsed += time.Duration(spb * float64(time.Second))
	}
	s.log.Debug("adjusted for ambient noise", "energy_threshold", s.loadEnergy())
	return nil
}

// Listen runs the Phase A / Phase B state machine (spec §4.2.3) until a
// long-enough phrase is captured, the source hits EOF, or timeout
// elapses without speech starting. timeout <= 0 means wait forever.
func (s *Segmenter) Listen(src audio.Source, timeout time.Duration) (audio.Data, error) {
	spb := secondsPerBuffer(src)
	nonSpeakingCount := ceilBuffers(s.cfg.NonSpeakingDuration, spb)
	pauseBufferCount := ceilBuffers(s.cfg.PauseThreshold, spb)
	phraseBufferCount := ceilBuffers(s.cfg.PhraseThreshold, spb)
	bufferDuration := time.Duration(spb * float64(time.Second))

	var cumulativeElapsed time.Duration

	for {
		ring := newBufferRing(nonSpeakingCount)
		triggered := false
		eof := false

		// Phase A: await speech.
		for {
			if timeout > 0 && cumulativeElapsed > timeout {
				return audio.Data{}, ErrWaitTimeout
			}
			buf, err := src.Read()
			if err != nil {
				return audio.Data{}, err
			}
			cumulativeElapsed += bufferDuration
			if len(buf) == 0 {
				eof = true
				break
			}
			ring.append(buf)
			energy := s.thresholdTrigger(buf, src.SampleWidth())
			if energy {
				triggered = true
				break
			}
			if s.cfg.DynamicEnergyThreshold {
				damping := math.Pow(s.cfg.DynamicEnergyAdjustmentDamping, spb)
				e := rmsEnergy(buf, src.SampleWidth())
				target := e * s.cfg.DynamicEnergyRatio
				s.storeEnergy(s.loadEnergy()*damping + target*(1-damping))
			}
		}

		if eof && !triggered {
			return audio.New(ring.concat(), src.SampleRate(), src.SampleWidth()), nil
		}

		// Phase B: capture until silence.
		ring.unbound()
		pauseCount := 0
		phraseCount := 0
		for {
			buf, err := src.Read()
			if err != nil {
				return audio.Data{}, err
			}
			if len(buf) == 0 {
				break
			}
			ring.append(buf)
			phraseCount++
			if s.thresholdTrigger(buf, src.SampleWidth()) {
				pauseCount = 0
			} else {
				pauseCount++
			}
			if pauseCount > pauseBufferCount {
				break
			}
		}

		effectivePhrase := phraseCount - pauseCount
		if effectivePhrase >= phraseBufferCount {
			ring.trimTrailing(pauseCount - nonSpeakingCount)
			return audio.New(ring.concat(), src.SampleRate(), src.SampleWidth()), nil
		}
		// Too short: discard and restart Phase A. The timeout clock
		// keeps running across this retry (cumulative per spec §5/§9).
	}
}

func (s *Segmenter) thresholdTrigger(buf []byte, sampleWidth int) bool {
	return rmsEnergy(buf, sampleWidth) > s.loadEnergy()
}
