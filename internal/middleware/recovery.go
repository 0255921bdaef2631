package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recoverer is a middleware that recovers from panics.
// It logs the panic with its stack and returns a generic 500.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := wrapResponseWriter(w)
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logPanic(logger, r, rvr)
					if !wrapped.wroteHeader {
						WriteError(wrapped, http.StatusInternalServerError, MsgInternal)
					}
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

func logPanic(logger *slog.Logger, r *http.Request, rvr any) {
	logger.Error("panic recovered",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("panic", rvr),
		slog.String("stack", string(debug.Stack())),
	)
}
