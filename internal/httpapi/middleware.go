package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"geosvc/internal/usage"
	"geosvc/pkg/apperror"
	"geosvc/pkg/logger"
	"geosvc/pkg/metrics"
)

// statusOf resolves the effective HTTP status for a finished request,
// preferring the typed error the handler returned over the (possibly not
// yet written) response status.
func statusOf(c echo.Context, err error) int {
	if herr, ok := err.(*echo.HTTPError); ok {
		return herr.Code
	}
	if appErr, ok := err.(*apperror.Error); ok {
		return appErr.HTTPStatus()
	}
	if s := c.Response().Status; s != 0 {
		return s
	}
	return http.StatusOK
}

// identityContextKey is where authenticate stashes the bearer token's
// subject for downstream handlers and the usage tracker middleware to
// read back via c.Get.
const identityContextKey = "identity"

// requestIDHeader is the header a request ID is read from and echoed on.
const requestIDHeader = "X-Request-Id"

// requestID assigns each request a stable id — reused from the client's
// X-Request-Id header when present, generated otherwise — and echoes it
// back on the response so a caller can correlate logs and usage records.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Response().Header().Set(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		return next(c)
	}
}

// authenticate implements the bearer-JWT check, validated through
// passhash.JWTManager. A nil JWT manager disables auth entirely (used
// by tests).
func (h *Handler) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.deps.JWT == nil {
			return next(c)
		}

		header := c.Request().Header.Get("Authorization")
		if header == "" {
			return apperror.New(apperror.CodeUnauthorized, "missing Authorization header")
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			return apperror.New(apperror.CodeUnauthorized, "Authorization header must use the Bearer scheme")
		}

		claims, err := h.deps.JWT.ValidateToken(token)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeUnauthorized, "invalid or expired token")
		}

		c.Set(identityContextKey, claims.UserID)
		return next(c)
	}
}

// bufferingResponseWriter tees everything written to the response into an
// in-memory buffer so the usage tracker middleware can hand the decoded
// JSON body to internal/usage's extraction functions after the handler
// returns.
type bufferingResponseWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *bufferingResponseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *bufferingResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// track returns middleware that captures the full request/response cycle
// and hands it to the Usage Tracker under the given api_kind.
// A nil Tracker makes this a no-op, so routes stay trackable without
// forcing every test to stand one up.
func (h *Handler) track(kind usage.APIKind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.deps.Tracker == nil {
				return next(c)
			}

			start := time.Now()

			var reqBody []byte
			if c.Request().Body != nil {
				reqBody, _ = io.ReadAll(c.Request().Body)
				c.Request().Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			bw := &bufferingResponseWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = bw

			handlerErr := next(c)

			status := bw.status
			if handlerErr != nil {
				status = statusOf(c, handlerErr)
			}

			var reqJSON, resJSON map[string]any
			_ = json.Unmarshal(reqBody, &reqJSON)
			_ = json.Unmarshal(bw.body.Bytes(), &resJSON)

			identity, _ := c.Get(identityContextKey).(string)

			rec := usage.UsageRecord{
				User:         identity,
				API:          string(kind),
				Endpoint:     c.Path(),
				StatusCode:   status,
				ResponseTime: time.Since(start),
				RequestSize:  len(reqBody),
				ResponseSize: bw.body.Len(),
				ClientIP:     c.RealIP(),
				UserAgent:    c.Request().UserAgent(),
				Timestamp:    start,
			}
			h.deps.Tracker.Record(c.Request().Context(), rec, kind, identity, reqJSON, resJSON)

			return handlerErr
		}
	}
}

// httpMetrics instruments every request with the in-flight tracker, the
// per-route duration histogram, and the route/status request counter. A
// nil Metrics dep makes this a pass-through.
func (h *Handler) httpMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := h.deps.Metrics
		if m == nil {
			return next(c)
		}

		route := c.Path()
		h.requests.Start(route)
		timer := metrics.NewTimer(m.HTTPRequestDuration, route)

		err := next(c)

		timer.ObserveDuration()
		h.requests.End(route)
		m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(statusOf(c, err))).Inc()
		return err
	}
}

// requestLogger logs one structured line per request (method/uri/
// status/latency/remote_ip/user_agent, level escalating with status).
func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := statusOf(c, err)

		attrs := []any{
			slog.String("method", c.Request().Method),
			slog.String("uri", c.Request().RequestURI),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("remote_ip", c.RealIP()),
			slog.String("user_agent", c.Request().UserAgent()),
		}

		log := logger.Log
		if log == nil {
			log = slog.Default()
		}
		switch {
		case status >= 500:
			log.Error("http request", attrs...)
		case status >= 400:
			log.Warn("http request", attrs...)
		default:
			log.Info("http request", attrs...)
		}
		return err
	}
}
