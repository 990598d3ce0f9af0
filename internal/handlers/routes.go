package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Routes mounts every endpoint. uploads serves stored images and is mounted
// under uploadsRoute with the prefix stripped. A zero requestTimeout disables
// the /predict deadline.
func (h *Handler) Routes(uploads http.Handler, uploadsRoute, corsOrigin string, requestTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()

	var predict http.Handler = http.HandlerFunc(h.Predict)
	if requestTimeout > 0 {
		predict = timeoutJSON(predict, requestTimeout)
	}

	mux.Handle("/health", enableCORS(corsOrigin, http.HandlerFunc(h.Health)))
	mux.Handle("/predict", enableCORS(corsOrigin, predict))
	mux.Handle("/feedback", enableCORS(corsOrigin, http.HandlerFunc(h.Feedback)))

	if uploads != nil {
		prefix := "/" + strings.Trim(uploadsRoute, "/") + "/"
		mux.Handle(prefix, enableCORS(corsOrigin, http.StripPrefix(prefix, uploads)))
	}

	return mux
}

// timeoutJSON answers 503 with a JSON error body once d has elapsed.
func timeoutJSON(next http.Handler, d time.Duration) http.Handler {
	th := http.TimeoutHandler(next, d, `{"error":"Request timed out"}`)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The timeout response is written straight to w, so the header has to
		// be there already. Completed responses overwrite it with their own.
		w.Header().Set("Content-Type", "application/json")
		th.ServeHTTP(w, r)
	})
}

func enableCORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
