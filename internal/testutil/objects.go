package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ObjectServer is a minimal read-only path-style S3 endpoint backed by a
// map. It answers bucket HEAD requests and object GETs, which is enough for
// the minio-go client used by the key sources. Uploads need a real server.
type ObjectServer struct {
	*httptest.Server
	buckets map[string]map[string][]byte
}

// NewObjectServer starts a server with one bucket holding objects. The
// server is closed when the test ends.
func NewObjectServer(t testing.TB, bucket string, objects map[string]string) *ObjectServer {
	t.Helper()
	s := &ObjectServer{buckets: map[string]map[string][]byte{bucket: {}}}
	for name, body := range objects {
		s.buckets[bucket][name] = []byte(body)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Endpoint returns host:port as minio-go expects it.
func (s *ObjectServer) Endpoint() string {
	return strings.TrimPrefix(s.URL, "http://")
}

func (s *ObjectServer) serve(w http.ResponseWriter, r *http.Request) {
	bucket, object, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	objects, ok := s.buckets[bucket]

	switch {
	case object == "" && r.Method == http.MethodHead:
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case !ok:
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", r.URL.Path)
	case r.Method == http.MethodGet:
		body, found := objects[object]
		if !found {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey", r.URL.Path)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "application/octet-stream")
		h.Set("Content-Length", fmt.Sprint(len(body)))
		h.Set("ETag", `"0123456789abcdef"`)
		h.Set("Last-Modified", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeS3Error(w http.ResponseWriter, status int, code, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message><Resource>%s</Resource><RequestId>test</RequestId></Error>`,
		code, code, resource)
}
