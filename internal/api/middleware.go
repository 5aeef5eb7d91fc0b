package api

import (
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

const authRealm = `Basic realm="camrelay"`

// requestLogger logs every request once it completed. The level follows
// the status: 5xx error, 4xx warn, the rest info.
func requestLogger(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)

		status := ctx.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", ctx.Method()),
			slog.String("path", ctx.URL().Path),
			slog.String("remote_addr", ctx.RemoteAddr()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if q := ctx.URL().RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}
		logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
	}
}

// cors allows any origin; the API is meant for a trusted network.
func cors(ctx huma.Context, next func(huma.Context)) {
	ctx.SetHeader("Access-Control-Allow-Origin", "*")
	ctx.SetHeader("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	ctx.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")
	next(ctx)
}

// handlePreflight answers OPTIONS before routing, which huma does not see.
func handlePreflight(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
}

// basicAuth protects operations that declare a security requirement.
// EventSource cannot set headers, so base64 "user:pass" is also accepted
// in the auth query parameter.
func (s *Server) basicAuth(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		user, pass, ok := credentials(ctx)
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			ctx.SetHeader("WWW-Authenticate", authRealm)
			_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}
		next(ctx)
	}
}

func credentials(ctx huma.Context) (user, pass string, ok bool) {
	encoded, found := strings.CutPrefix(ctx.Header("Authorization"), "Basic ")
	if !found {
		encoded = ctx.Query("auth")
	}
	if encoded == "" {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(decoded), ":")
}
