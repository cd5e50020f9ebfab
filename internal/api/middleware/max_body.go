package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/panday-team/panday/internal/api/response"
)

// RequestBodyTooLargeRecorder records when a request is rejected for exceeding the body limit.
// Pass nil when metrics are disabled.
type RequestBodyTooLargeRecorder interface {
	RecordRequestBodyTooLarge(ctx context.Context)
}

// MaxBody limits request bodies of POST, PUT and PATCH to maxBytes and answers 413 when a body is larger.
// A declared Content-Length over the limit is rejected before the handler runs. Otherwise the handler
// reads through http.MaxBytesReader, and if it hit the limit, its response is replaced by the 413 at
// the first WriteHeader. maxBytes <= 0 disables the limit.
func MaxBody(maxBytes int64, recorder RequestBodyTooLargeRecorder) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !mayHaveBody(r.Method) {
				next.ServeHTTP(w, r)

				return
			}

			reject := func() {
				if recorder != nil {
					recorder.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")
			}

			if r.ContentLength > maxBytes {
				reject()

				return
			}

			lw := &limitWriter{ResponseWriter: w, reject: reject}
			r.Body = &limitReader{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes), w: lw}

			next.ServeHTTP(lw, r)
		})
	}
}

func mayHaveBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// limitReader flags its writer once the body limit is hit.
type limitReader struct {
	io.ReadCloser

	w *limitWriter
}

func (r *limitReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if err != nil && errors.As(err, &tooLarge) {
		r.w.exceeded = true
	}

	// io.EOF must reach the caller unwrapped; decoders compare it with ==.
	return n, err //nolint:wrapcheck // pass-through reader
}

// limitWriter swaps the handler's response for a 413 when the body limit was exceeded.
type limitWriter struct {
	http.ResponseWriter

	reject      func()
	exceeded    bool
	wroteHeader bool
	rejected    bool
}

func (w *limitWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}

	w.wroteHeader = true

	if w.exceeded {
		w.rejected = true
		w.reject()

		return
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	if w.rejected {
		return len(p), nil
	}

	return w.ResponseWriter.Write(p) //nolint:wrapcheck // pass-through writer
}

func (w *limitWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
