package requestid

import (
	"context"
	"net/http"

	"github.com/renstrom/shortuuid"
)

// Request ids travel in this header. It is the standard key for request ids;
// opentelemetry uses the same one.
const MetadataKey = "x-request-id"

type contextKey struct{}

// FromContext returns the request id stored in ctx, if one is available.
// The second return value is true if the operation was successful.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// FromContextOrMissing returns the request id stored in ctx, or the string
// "missing" if there is none.
func FromContextOrMissing(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return "missing"
}

func AddToContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Middleware annotates every request with an id, generated with
// github.com/renstrom/shortuuid unless the caller already sent one. The id
// is stored in the request context and echoed in the response headers.
// If replace is true, ids sent by callers are overwritten.
func Middleware(replace bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(MetadataKey)
			if id == "" || replace {
				id = shortuuid.New()
			}
			w.Header().Set(MetadataKey, id)
			next.ServeHTTP(w, r.WithContext(AddToContext(r.Context(), id)))
		})
	}
}
