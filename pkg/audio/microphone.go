package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Microphone is the real-capture AudioSource backend, grounded on the
// teacher's cmd/agent malgo wiring but narrowed to capture-only (the
// teacher's device is Duplex because it also plays TTS output back;
// segmentation has no playback side). malgo's Data callback hands us
// whatever frame count the backend feels like; the capture callback
// reassembles those into fixed ChunkSize()-sample frames and Read hands
// them onward one at a time, so a
// Segmenter sees a steady buffer size regardless of host audio backend.
type Microphone struct {
	sampleRate  int
	sampleWidth int
	chunkSize   int

	mu      sync.Mutex
	open    bool
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	pending []byte
	chunks  chan []byte
	errs    chan error
}

// NewMicrophone builds a Microphone source. sampleWidth must be 1, 2,
// or 4 (malgo.FormatU8/S16/S32); anything else falls back to S16.
func NewMicrophone(sampleRate, sampleWidth, chunkSize int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if sampleWidth != 1 && sampleWidth != 2 && sampleWidth != 4 {
		sampleWidth = DefaultSampleWidth
	}
	return &Microphone{sampleRate: sampleRate, sampleWidth: sampleWidth, chunkSize: chunkSize}
}

func malgoFormat(sampleWidth int) malgo.FormatType {
	switch sampleWidth {
	case 1:
		return malgo.FormatU8
	case 4:
		return malgo.FormatS32
	default:
		return malgo.FormatS16
	}
}

func (m *Microphone) Open() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return nil, ErrAlreadyOpen("Microphone")
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &SourceError{Op: "open", Err: fmt.Errorf("init audio context: %w", err)}
	}

	// Buffered generously: a slow consumer must not stall the capture
	// callback, which runs on the audio backend's own thread.
	m.chunks = make(chan []byte, 64)
	m.errs = make(chan error, 1)
	m.pending = nil

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgoFormat(m.sampleWidth)
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onRecv := func(_ []byte, pInput []byte, _ uint32) {
		m.mu.Lock()
		m.pending = append(m.pending, pInput...)
		frameBytes := m.chunkSize * m.sampleWidth
		for len(m.pending) >= frameBytes {
			chunk := make([]byte, frameBytes)
			copy(chunk, m.pending[:frameBytes])
			m.pending = m.pending[frameBytes:]
			select {
			case m.chunks <- chunk:
			default:
				// consumer fell behind; drop this newly assembled chunk
				// rather than block the capture callback
			}
		}
		m.mu.Unlock()
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		mctx.Uninit()
		return nil, &SourceError{Op: "open", Err: fmt.Errorf("init capture device: %w", err)}
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, &SourceError{Op: "open", Err: fmt.Errorf("start capture device: %w", err)}
	}

	m.mctx = mctx
	m.device = device
	m.open = true
	return m, nil
}

func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return nil
	}
	m.open = false
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	if m.mctx != nil {
		m.mctx.Uninit()
		m.mctx = nil
	}
	return nil
}

func (m *Microphone) SampleRate() int  { return m.sampleRate }
func (m *Microphone) SampleWidth() int { return m.sampleWidth }
func (m *Microphone) ChunkSize() int   { return m.chunkSize }

func (m *Microphone) Read() ([]byte, error) {
	m.mu.Lock()
	open := m.open
	chunks := m.chunks
	errs := m.errs
	m.mu.Unlock()
	if !open {
		panic(&ErrNotOpen{name: "Microphone"})
	}

	select {
	case chunk := <-chunks:
		return chunk, nil
	case err := <-errs:
		return nil, &SourceError{Op: "read", Err: err}
	}
}
