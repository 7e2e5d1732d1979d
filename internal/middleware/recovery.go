package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
)

// Recoverer is a middleware that recovers from panics.
// It logs the panic and returns a 500 Internal Server Error.
//
// Per the Internal error kind's propagation rule (§7: "the message is
// an opaque identifier, full detail logged"), the body given to the
// client is just the request ID, in the same {error, code} shape
// every other handler error uses — never the panic value or stack.
func Recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					// Get request ID for correlation
					requestID := GetRequestID(r.Context())

					// Log the panic
					logger.Error("panic recovered",
						slog.String("request_id", requestID),
						slog.Any("panic", rvr),
						slog.String("stack", string(debug.Stack())),
					)

					// In development, also print to stderr for visibility
					if os.Getenv("APP_ENV") == "development" {
						debug.PrintStack()
					}

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(internalErrorResponse{
						Error: "internal error, reference " + requestID,
						Code:  "INTERNAL",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// internalErrorResponse mirrors dto.ErrorResponse's wire shape without
// importing the handler package, which would create an import cycle
// (handler already imports middleware for request-ID access).
type internalErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
