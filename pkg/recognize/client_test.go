package recognize

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/lokutor-ai/phrasecap/pkg/audio"
)

func TestRecognizeSendsExpectedContract(t *testing.T) {
	var gotQuery url.Values
	var gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"turn on the lights","response":"ok","intent":{"name":"lights_on"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-token", "client-1")
	data := audio.New([]byte{1, 2, 3, 4}, 16000, 2)

	result, err := c.Recognize(context.Background(), data)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if gotPath != "/api/audible" {
		t.Errorf("path = %q, want /api/audible", gotPath)
	}
	if gotQuery.Get("token") != "secret-token" {
		t.Errorf("token = %q, want secret-token", gotQuery.Get("token"))
	}
	if gotQuery.Get("samplerate") != "16000" {
		t.Errorf("samplerate = %q, want 16000", gotQuery.Get("samplerate"))
	}
	if gotQuery.Get("samplewidth") != "2" {
		t.Errorf("samplewidth = %q, want 2", gotQuery.Get("samplewidth"))
	}
	if gotQuery.Get("clientid") != "client-1" {
		t.Errorf("clientid = %q, want client-1", gotQuery.Get("clientid"))
	}
	if string(gotBody) != "\x01\x02\x03\x04" {
		t.Errorf("body = %v, want the raw frame bytes", gotBody)
	}
	if result.Transcript != "turn on the lights" {
		t.Errorf("Transcript = %q", result.Transcript)
	}
	if result.Reply != "ok" {
		t.Errorf("Reply = %q", result.Reply)
	}
}

func TestRecognizeNonSuccessReturnsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "cid")
	_, err := c.Recognize(context.Background(), audio.New([]byte{0, 0}, 16000, 2))

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", reqErr.StatusCode)
	}
}

func TestRecognizeUnparseableBodyIsUnknownValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", "cid")
	_, err := c.Recognize(context.Background(), audio.New([]byte{0, 0}, 16000, 2))
	if !errors.Is(err, ErrUnknownValue) {
		t.Fatalf("error = %v, want ErrUnknownValue", err)
	}
}
