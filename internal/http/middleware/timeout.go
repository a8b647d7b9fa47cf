package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const timeoutMessage = "Sorry, that took too long. Please try again."

// Timeout bounds the request context with chi's Timeout middleware. chi sends a
// bare 504 once the deadline passes; the voice agent gets a JSON message
// instead, and a handler that already answered keeps its response.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		bounded := chimw.Timeout(d)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if tw, ok := w.(*timeoutWriter); ok {
				tw.handlerDone = true
			}
		}))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bounded.ServeHTTP(&timeoutWriter{ResponseWriter: w}, r)
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	wrote       bool
	handlerDone bool
}

func (t *timeoutWriter) WriteHeader(status int) {
	if t.handlerDone {
		if !t.wrote && status == http.StatusGatewayTimeout {
			t.wrote = true
			writeJSONError(t.ResponseWriter, status, timeoutMessage)
		}
		return
	}
	t.wrote = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *timeoutWriter) Write(b []byte) (int, error) {
	t.wrote = true
	return t.ResponseWriter.Write(b)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
