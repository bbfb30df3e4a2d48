package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("received: " + string(body)))
}

func gzipBytes(t *testing.T, s string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		gzipRequest     bool
		acceptEncoding  string
		contentType     string
		wantEncoding    string
		wantBodyContain string
	}{
		{
			name:            "json response is compressed",
			body:            `{"amount":"1500.00"}`,
			acceptEncoding:  "gzip",
			contentType:     "application/json",
			wantEncoding:    "gzip",
			wantBodyContain: `received: {"amount":"1500.00"}`,
		},
		{
			name:            "client without gzip gets plain body",
			body:            `{"amount":"1500.00"}`,
			contentType:     "application/json",
			wantBodyContain: `received: {"amount":"1500.00"}`,
		},
		{
			name:            "plain text is not compressed",
			body:            "ok",
			acceptEncoding:  "gzip",
			contentType:     "text/plain",
			wantBodyContain: "received: ok",
		},
		{
			name:            "compressed request body",
			body:            `{"quantity":2}`,
			gzipRequest:     true,
			acceptEncoding:  "gzip",
			contentType:     "application/json",
			wantEncoding:    "gzip",
			wantBodyContain: `received: {"quantity":2}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.body)
			if tt.gzipRequest {
				body = gzipBytes(t, tt.body)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/deposits", body)
			req.Header.Set("Content-Type", tt.contentType)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			if tt.gzipRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			require.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			assert.Equal(t, tt.wantEncoding, res.Header.Get("Content-Encoding"))

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				require.NoError(t, err)
				defer gr.Close()
				reader = gr
			}
			got, err := io.ReadAll(reader)
			require.NoError(t, err)
			assert.Contains(t, string(got), tt.wantBodyContain)
		})
	}
}

func TestGzipMiddlewareBrokenBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/deposits", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
