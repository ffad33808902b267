// internal/api/middleware.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/metrics"
	"portal-service/internal/common/policy"

	"github.com/gorilla/mux"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// observe records request metrics by route template and logs each request.
func observe(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := routeTemplate(r)
			duration := time.Since(start)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			fields := map[string]interface{}{
				"method":     r.Method,
				"route":      route,
				"status":     rec.status,
				"durationMs": duration.Milliseconds(),
			}
			if rec.status >= http.StatusInternalServerError {
				log.Error("request failed", fields)
				return
			}
			log.Debug("request served", fields)
		})
	}
}

// authenticate requires a valid bearer token and puts its user on the
// request context.
func authenticate(verifier *auth.Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, err)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), claims.User, token)))
		})
	}
}

// gate asks the policy service whether the caller may perform action on
// resource. Denials and evaluation failures both end the request with 403.
func (s *Server) gate(resource, action string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())
		req := policy.Request{
			Token:    auth.TokenFromContext(r.Context()),
			Resource: resource,
			Action:   action,
			Context: map[string]interface{}{
				"userId":   user.ID,
				"userType": string(user.UserType),
				"tenantId": user.TenantID,
			},
		}
		if id := mux.Vars(r)["applicationId"]; id != "" {
			req.Context["applicationId"] = id
		}

		decision, err := s.policy.Evaluate(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		if !decision.Allowed() {
			s.logger.Warn("policy denied request", map[string]interface{}{
				"resource": resource,
				"action":   action,
				"userId":   user.ID,
				"reason":   decision.Reason,
			})
			writeError(w, apperrors.NewForbiddenError("policy denied "+action+" on "+resource))
			return
		}
		next(w, r)
	}
}
