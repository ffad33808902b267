// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/logger"
	"portal-service/internal/common/policy"
	"portal-service/internal/common/validation"
	"portal-service/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Policy resources, one per record kind.
const (
	ResourcePersonal     = "personal-details"
	ResourceProfessional = "professional-details"
	ResourceSubscription = "subscription-details"
	ResourceApplications = "applications"
)

const (
	ActionCreate  = "create"
	ActionRead    = "read"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRestore = "restore"
)

const maxBodyBytes = 1 << 20

// ReadyFunc reports whether the service's dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

type Server struct {
	svc       *service.Service
	validator *validation.Validator
	verifier  *auth.Verifier
	policy    policy.Evaluator
	ready     ReadyFunc
	logger    logger.Logger
}

func NewServer(svc *service.Service, validator *validation.Validator, verifier *auth.Verifier, evaluator policy.Evaluator, ready ReadyFunc, log logger.Logger) *Server {
	if evaluator == nil {
		evaluator = policy.AllowAll{}
	}
	return &Server{
		svc:       svc,
		validator: validator,
		verifier:  verifier,
		policy:    evaluator,
		ready:     ready,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// Router wires the probes, metrics and the authenticated record routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(observe(s.logger))

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.readiness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(authenticate(s.verifier))

	api.HandleFunc("/personal-details", s.gate(ResourcePersonal, ActionCreate, s.createPersonal)).Methods(http.MethodPost)
	api.HandleFunc("/personal-details/{applicationId}", s.getPersonal).Methods(http.MethodGet)
	api.HandleFunc("/personal-details/{applicationId}", s.gate(ResourcePersonal, ActionUpdate, s.updatePersonal)).Methods(http.MethodPut)
	api.HandleFunc("/personal-details/{applicationId}", s.gate(ResourcePersonal, ActionDelete, s.deletePersonal)).Methods(http.MethodDelete)
	api.HandleFunc("/personal-details/{applicationId}/restore", s.gate(ResourcePersonal, ActionRestore, s.restorePersonal)).Methods(http.MethodPost)

	api.HandleFunc("/professional-details/{applicationId}", s.gate(ResourceProfessional, ActionCreate, s.createProfessional)).Methods(http.MethodPost)
	api.HandleFunc("/professional-details/{applicationId}", s.getProfessional).Methods(http.MethodGet)
	api.HandleFunc("/professional-details/{applicationId}", s.gate(ResourceProfessional, ActionUpdate, s.updateProfessional)).Methods(http.MethodPut)
	api.HandleFunc("/professional-details/{applicationId}", s.gate(ResourceProfessional, ActionDelete, s.deleteProfessional)).Methods(http.MethodDelete)
	api.HandleFunc("/professional-details/{applicationId}/restore", s.gate(ResourceProfessional, ActionRestore, s.restoreProfessional)).Methods(http.MethodPost)

	api.HandleFunc("/subscription-details/{applicationId}", s.gate(ResourceSubscription, ActionCreate, s.createSubscription)).Methods(http.MethodPost)
	api.HandleFunc("/subscription-details/{applicationId}", s.getSubscription).Methods(http.MethodGet)
	api.HandleFunc("/subscription-details/{applicationId}", s.gate(ResourceSubscription, ActionUpdate, s.updateSubscription)).Methods(http.MethodPut)
	api.HandleFunc("/subscription-details/{applicationId}", s.gate(ResourceSubscription, ActionDelete, s.deleteSubscription)).Methods(http.MethodDelete)
	api.HandleFunc("/subscription-details/{applicationId}/restore", s.gate(ResourceSubscription, ActionRestore, s.restoreSubscription)).Methods(http.MethodPost)

	api.HandleFunc("/applications", s.gate(ResourceApplications, ActionRead, s.listApplications)).Methods(http.MethodGet)
	api.HandleFunc("/applications/{applicationId}", s.gate(ResourceApplications, ActionRead, s.getApplication)).Methods(http.MethodGet)
	api.HandleFunc("/applications/{applicationId}/status", s.gate(ResourceApplications, ActionUpdate, s.updateStatus)).Methods(http.MethodPatch)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// ==========================
// Request helpers
// ==========================

// decode validates the body against schema and unmarshals it into dest.
func (s *Server) decode(r *http.Request, schema string, dest interface{}) error {
	raw, err := readBody(r)
	if err != nil {
		return err
	}
	result, err := s.validator.Validate(schema, raw)
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}
