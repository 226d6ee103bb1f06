package audio

import "sync"

// MockSource is a scripted AudioSource for tests: it replays a fixed
// sequence of buffers and then returns EOF (an empty buffer) forever
// after. It is exported rather than kept test-only because the spec
// names it as one of the three AudioSource variants a Segmenter must be
// polymorphic over.
type MockSource struct {
	sampleRate  int
	sampleWidth int
	chunkSize   int

	mu     sync.Mutex
	open   bool
	frames [][]byte
	pos    int
	readErr error // if set, returned once all frames are exhausted, instead of EOF
}

// NewMockSource builds a MockSource that yields frames in order, then
// signals end-of-stream (an empty buffer, nil error) on every
// subsequent Read.
func NewMockSource(sampleRate, sampleWidth, chunkSize int, frames ...[]byte) *MockSource {
	return &MockSource{
		sampleRate:  sampleRate,
		sampleWidth: sampleWidth,
		chunkSize:   chunkSize,
		frames:      frames,
	}
}

// WithReadError makes the source return err (wrapped as a SourceError)
// once its scripted frames are exhausted, instead of EOF. Useful for
// exercising SourceError propagation in listener tests.
func (m *MockSource) WithReadError(err error) *MockSource {
	m.readErr = err
	return m
}

func (m *MockSource) Open() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return nil, ErrAlreadyOpen("MockSource")
	}
	m.open = true
	return m, nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
	return nil
}

func (m *MockSource) SampleRate() int  { return m.sampleRate }
func (m *MockSource) SampleWidth() int { return m.sampleWidth }
func (m *MockSource) ChunkSize() int   { return m.chunkSize }

func (m *MockSource) Read() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		panic(&ErrNotOpen{name: "MockSource"})
	}
	if m.pos >= len(m.frames) {
		if m.readErr != nil {
			return nil, &SourceError{Op: "read", Err: m.readErr}
		}
		return nil, nil
	}
	f := m.frames[m.pos]
	m.pos++
	return f, nil
}
