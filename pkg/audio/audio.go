// Package audio defines the capture-session contract shared by every
// AudioSource backend (microphone, WAV file, mock) and the immutable
// AudioData value produced by a segmented phrase.
package audio

import (
	"fmt"
	"time"
)

// Default PCM format, matching the configuration surface's documented
// defaults: signed 16-bit little-endian mono at 16kHz with 1024-sample
// chunks.
const (
	DefaultSampleRate  = 16000
	DefaultSampleWidth = 2
	DefaultChunkSize   = 1024
)

// Data is an immutable PCM phrase: raw interleaved samples plus the
// format metadata needed to interpret them. Produced by a Segmenter,
// consumed by a callback; never mutated after construction.
type Data struct {
	FrameData   []byte
	SampleRate  int
	SampleWidth int
}

// New builds a Data value. It does not validate that len(frameData) is
// a multiple of sampleWidth — callers within this module only ever hand
// it whole buffers assembled from whole reads, so that invariant holds
// by construction rather than by runtime check.
func New(frameData []byte, sampleRate, sampleWidth int) Data {
	return Data{FrameData: frameData, SampleRate: sampleRate, SampleWidth: sampleWidth}
}

// Duration returns the playback length of the captured frame data.
func (d Data) Duration() time.Duration {
	if d.SampleRate <= 0 || d.SampleWidth <= 0 {
		return 0
	}
	samples := len(d.FrameData) / d.SampleWidth
	seconds := float64(samples) / float64(d.SampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// Source is the capability set a Segmenter needs from an open capture
// session: known format plus a blocking read.
type Source interface {
	SampleRate() int
	SampleWidth() int
	ChunkSize() int

	// Read blocks until the next chunk of audio is available. It
	// returns fewer than ChunkSize() samples' worth of bytes only at
	// end-of-stream, signalled by a zero-length return with a nil
	// error. A non-nil error is a SourceError and ends the capture
	// session as far as its caller is concerned.
	Read() ([]byte, error)
}

// Session is an opened Source with a release operation.
type Session interface {
	Source
	Close() error
}

// Opener is a scoped capture session factory: Microphone, WavFile, and
// MockSource all implement it. A given Opener value must not be opened
// twice concurrently.
type Opener interface {
	Open() (Session, error)
}

// Open acquires a session from o, guarantees its release via defer (on
// every exit path, including a panic unwinding through fn or an error
// returned by fn), and runs fn against the opened Source. It is the Go
// equivalent of the original's "with mic as source:" scoped
// acquisition.
func Open(o Opener, fn func(Source) error) error {
	sess, err := o.Open()
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

// SourceError wraps a failure from an AudioSource backend: device
// acquisition failure (fatal to the session) or a mid-stream read
// error (propagated to the caller, or attached to a BackgroundListener
// stop handle in background mode).
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("audio: %s: %v", e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ErrAlreadyOpen is returned by Open when the session is already
// active — an AudioSource must not be nested in two concurrent scopes.
type errAlreadyOpen struct{ name string }

func (e *errAlreadyOpen) Error() string {
	return fmt.Sprintf("audio: %s is already open", e.name)
}

// ErrAlreadyOpen builds the error returned when a session is opened
// while already active.
func ErrAlreadyOpen(name string) error { return &errAlreadyOpen{name: name} }

// ErrNotOpen is the panic value raised by Read() on a session used
// outside its open scope — a programming error per the spec, not a
// recoverable runtime condition. Close() on a session that is not open
// does not panic.
type ErrNotOpen struct{ name string }

func (e *ErrNotOpen) Error() string {
	return fmt.Sprintf("audio: %s: read called while not open", e.name)
}
