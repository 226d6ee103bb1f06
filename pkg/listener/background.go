// Package listener implements the BackgroundListener: a worker that
// repeatedly invokes a Segmenter on a dedicated goroutine and delivers
// each captured phrase to a callback, with cooperative, idempotent
// shutdown.
package listener

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/phrasecap/internal/logging"
	"github.com/lokutor-ai/phrasecap/pkg/audio"
	"github.com/lokutor-ai/phrasecap/pkg/segmenter"
)

// listenTimeout is the per-call timeout the worker passes to Listen, so
// the stop flag is revisited at least this often between phrases.
const listenTimeout = 1 * time.Second

// Callback receives each segmented phrase, or a mid-stream
// audio.SourceError. It runs on the worker goroutine, never
// concurrently with another invocation of itself; the caller is
// responsible for its own thread-safety. A non-nil err means the
// source failed: data is the zero value, and this is the last call the
// worker will make before exiting.
type Callback func(data audio.Data, err error)

// StopHandle transitions a running BackgroundListener to stopped and
// joins its worker. Grounded on the teacher's ManagedStream.Close
// idempotent-shutdown shape (sync.Once over the actual teardown) and on
// the original's listen_in_background stopper closure.
type StopHandle struct {
	running atomic.Bool
	stopOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// Stop requests shutdown and blocks until the worker has exited and the
// source session has been released. Calling Stop more than once is
// safe; later calls return immediately once the first has completed.
func (h *StopHandle) Stop() {
	h.stopOnce.Do(func() {
		h.running.Store(false)
	})
	<-h.done
}

// Err returns the error that ended the worker, if it stopped because of
// an audio.SourceError rather than a caller-initiated Stop. Safe to
// call after Stop returns or after a callback observes the worker has
// exited.
func (h *StopHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *StopHandle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

// Start acquires source as a scoped session, spawns a worker goroutine,
// and returns immediately with a handle to stop it. The worker
// repeatedly calls seg.Listen with a 1s timeout; WaitTimeout is
// swallowed and retried, any other error ends the worker with the
// session released and the error attached to the handle.
func Start(seg *segmenter.Segmenter, source audio.Opener, callback Callback, log logging.Logger) (*StopHandle, error) {
	if log == nil {
		log = logging.NoOpLogger{}
	}

	sess, err := source.Open()
	if err != nil {
		return nil, err
	}

	h := &StopHandle{done: make(chan struct{})}
	h.running.Store(true)

	go func() {
		defer close(h.done)
		defer sess.Close()

		for h.running.Load() {
			data, err := seg.Listen(sess, listenTimeout)
			if err != nil {
				if errors.Is(err, segmenter.ErrWaitTimeout) {
					continue
				}
				log.Warn("background listener worker stopping on error", "error", err)
				h.setErr(err)
				callback(audio.Data{}, err)
				return
			}

			// Double-check the running flag before delivering: a Stop
			// requested mid-phrase must not result in a callback.
			if !h.running.Load() {
				return
			}
			callback(data, nil)
		}
	}()

	return h, nil
}
