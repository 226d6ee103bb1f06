package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// EncodeWAV wraps raw little-endian PCM in a minimal RIFF/WAVE
// container, for handing a recognized or recorded phrase to a tool
// that expects a file rather than a bare byte stream. Generalized from
// the teacher's NewWavBuffer to carry sampleWidth instead of assuming
// 16-bit.
func EncodeWAV(pcm []byte, sampleRate, sampleWidth int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*sampleWidth))
	binary.Write(buf, binary.LittleEndian, uint16(sampleWidth))
	binary.Write(buf, binary.LittleEndian, uint16(sampleWidth*8))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

type wavHeader struct {
	SampleRate  int
	SampleWidth int
	DataSize    int64
}

func readWavHeader(r io.ReadSeeker) (*wavHeader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	h := &wavHeader{}
	for {
		var chunkID [4]byte
		var chunkSize uint32
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			return nil, fmt.Errorf("read chunk id: %w", err)
		}
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var audioFormat, numChannels uint16
			var sampleRate, byteRate uint32
			var blockAlign, bitsPerSample uint16
			binary.Read(r, binary.LittleEndian, &audioFormat)
			binary.Read(r, binary.LittleEndian, &numChannels)
			binary.Read(r, binary.LittleEndian, &sampleRate)
			binary.Read(r, binary.LittleEndian, &byteRate)
			binary.Read(r, binary.LittleEndian, &blockAlign)
			binary.Read(r, binary.LittleEndian, &bitsPerSample)
			h.SampleRate = int(sampleRate)
			h.SampleWidth = int(bitsPerSample / 8)
			if remaining := int64(chunkSize) - 16; remaining > 0 {
				r.Seek(remaining, io.SeekCurrent)
			}
		case "data":
			h.DataSize = int64(chunkSize)
			return h, nil
		default:
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skip chunk %q: %w", chunkID, err)
			}
		}
	}
}

// WavFile is an AudioSource backend that replays a WAV file's PCM data
// in fixed ChunkSize-sample buffers, then signals end-of-stream. It is
// the offline-replay counterpart to Microphone, used for testing and
// the CLI's file-replay debug mode.
type WavFile struct {
	path      string
	chunkSize int

	mu        sync.Mutex
	open      bool
	file      *os.File
	header    *wavHeader
	bytesRead int64
}

// NewWavFile builds a WavFile source reading chunkSize samples per
// Read call.
func NewWavFile(path string, chunkSize int) *WavFile {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &WavFile{path: path, chunkSize: chunkSize}
}

func (w *WavFile) Open() (Session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open {
		return nil, ErrAlreadyOpen("WavFile")
	}
	f, err := os.Open(w.path)
	if err != nil {
		return nil, &SourceError{Op: "open", Err: err}
	}
	header, err := readWavHeader(f)
	if err != nil {
		f.Close()
		return nil, &SourceError{Op: "open", Err: err}
	}
	w.file = f
	w.header = header
	w.bytesRead = 0
	w.open = true
	return w, nil
}

func (w *WavFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *WavFile) SampleRate() int  { return w.header.SampleRate }
func (w *WavFile) SampleWidth() int { return w.header.SampleWidth }
func (w *WavFile) ChunkSize() int   { return w.chunkSize }

func (w *WavFile) Read() ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		panic(&ErrNotOpen{name: "WavFile"})
	}

	want := int64(w.chunkSize * w.header.SampleWidth)
	remaining := w.header.DataSize - w.bytesRead
	if remaining <= 0 {
		return nil, nil
	}
	if want > remaining {
		want = remaining
	}

	buf := make([]byte, want)
	n, err := io.ReadFull(w.file, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, &SourceError{Op: "read", Err: err}
	}
	w.bytesRead += int64(n)
	return buf[:n], nil
}
