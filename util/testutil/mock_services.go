package testutil

import (
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

// These functions allow us to mock http responses from timestamp
// authorities, nsqd and S3.

var EmptyHeaders = make(map[string]string, 0)

// Returns an http handler function that returns the contents
// of the specified file, along with the specified headers.
func HttpFileResponder(headers map[string]string, filePath string) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		setHeaders(w, headers)
		f, err := os.Open(filePath)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		io.Copy(w, f)
	}
	return http.HandlerFunc(f)
}

// Returns an http handler function that returns the specified
// string, along with the specified headers.
func HttpStringResponder(headers map[string]string, data string) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		setHeaders(w, headers)
		w.Write([]byte(data))
	}
	return http.HandlerFunc(f)
}

// Returns an http handler function that responds with the specified
// status code and body.
func HttpStatusResponder(status int, data string) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(data))
	}
	return http.HandlerFunc(f)
}

// Returns an http handler function that waits for delay, or until
// the client goes away, before responding with data.
func HttpSlowResponder(delay time.Duration, data string) http.HandlerFunc {
	f := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(delay):
			w.Write([]byte(data))
		case <-r.Context().Done():
		}
	}
	return http.HandlerFunc(f)
}

// RecordedRequest is a copy of the parts of an http request our
// tests look at.
type RecordedRequest struct {
	Body        string
	ContentType string
	Method      string
	URL         string
}

// RequestRecorder wraps a handler and keeps a copy of every request
// it receives.
type RequestRecorder struct {
	Handler  http.Handler
	mutex    sync.Mutex
	requests []RecordedRequest
}

func NewRequestRecorder(handler http.Handler) *RequestRecorder {
	return &RequestRecorder{Handler: handler}
}

func (rr *RequestRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rr.mutex.Lock()
	rr.requests = append(rr.requests, RecordedRequest{
		Body:        string(body),
		ContentType: r.Header.Get("Content-Type"),
		Method:      r.Method,
		URL:         r.URL.String(),
	})
	rr.mutex.Unlock()
	rr.Handler.ServeHTTP(w, r)
}

// Requests returns a copy of the requests received so far.
func (rr *RequestRecorder) Requests() []RecordedRequest {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	return append([]RecordedRequest(nil), rr.requests...)
}

func setHeaders(w http.ResponseWriter, headers map[string]string) {
	if headers != nil {
		for key, value := range headers {
			w.Header().Set(key, value)
		}
	}
}
