package http

import (
	"context"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront-cart/internal/session"
	"github.com/utafrali/storefront-cart/pkg/httputil"
	"github.com/utafrali/storefront-cart/pkg/logger"
)

type contextKey string

const sessionKey contextKey = "cart_session"

// ContentTypeJSONOrForm rejects request bodies that are neither JSON nor an
// htmx form submission.
func ContentTypeJSONOrForm(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" && r.ContentLength != 0 {
			mt, _, err := mime.ParseMediaType(ct)
			if err != nil || (mt != "application/json" && mt != "application/x-www-form-urlencoded") {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNSUPPORTED_MEDIA_TYPE",
						Message: "Content-Type must be application/json or application/x-www-form-urlencoded",
					},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromPath resolves {sessionId} through sessions and stores the
// session in the request context. It also tags the request logger.
func SessionFromPath(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := httputil.ParseUUID(w, chi.URLParam(r, "sessionId"))
			if !ok {
				return
			}

			sess, err := sessions.Get(id.String())
			if err != nil {
				httputil.WriteError(w, r, err, nil)
				return
			}

			ctx := r.Context()
			if logger.SessionIDFromContext(ctx) == "" {
				ctx = logger.WithSessionID(ctx, sess.ID())
				ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("session_id", sess.ID())))
			}
			ctx = context.WithValue(ctx, sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}
