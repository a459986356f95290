package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// GetRequestIDFromContext retrieves the request ID assigned by chi's RequestID
// middleware, or "" outside a routed request.
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}
