// internal/api/handlers.go
package api

import (
	"io"
	"net/http"
	"strconv"

	"portal-service/internal/common/auth"
	apperrors "portal-service/internal/common/errors"
	"portal-service/internal/common/validation"
	"portal-service/internal/models"
	"portal-service/internal/service"

	"github.com/gorilla/mux"
)

func readBody(r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable request body")
	}
	if len(raw) > maxBodyBytes {
		return nil, apperrors.NewValidationError("request body too large")
	}
	if len(raw) == 0 {
		return nil, apperrors.NewValidationError("request body is required")
	}
	return raw, nil
}

func actor(r *http.Request) auth.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

func applicationID(r *http.Request) string {
	return mux.Vars(r)["applicationId"]
}

// fail writes the error envelope and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status := writeError(w, err); status >= http.StatusInternalServerError {
		s.logger.Error("request error", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"error":  err.Error(),
		})
	}
}

// ==========================
// Personal details
// ==========================

func (s *Server) createPersonal(w http.ResponseWriter, r *http.Request) {
	var in service.PersonalInput
	if err := s.decode(r, validation.SchemaPersonalDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.CreatePersonal(r.Context(), actor(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rec, "Personal details created")
}

func (s *Server) getPersonal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetPersonal(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "")
}

func (s *Server) updatePersonal(w http.ResponseWriter, r *http.Request) {
	var in service.PersonalInput
	if err := s.decode(r, validation.SchemaPersonalDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.UpdatePersonal(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Personal details updated")
}

func (s *Server) deletePersonal(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeletePersonal(r.Context(), actor(r), applicationID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "Personal details deleted")
}

func (s *Server) restorePersonal(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.RestorePersonal(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Personal details restored")
}

// ==========================
// Professional details
// ==========================

func (s *Server) createProfessional(w http.ResponseWriter, r *http.Request) {
	var in service.ProfessionalInput
	if err := s.decode(r, validation.SchemaProfessionalDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.CreateProfessional(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rec, "Professional details created")
}

func (s *Server) getProfessional(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetProfessional(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "")
}

func (s *Server) updateProfessional(w http.ResponseWriter, r *http.Request) {
	var in service.ProfessionalInput
	if err := s.decode(r, validation.SchemaProfessionalDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.UpdateProfessional(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Professional details updated")
}

func (s *Server) deleteProfessional(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteProfessional(r.Context(), actor(r), applicationID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "Professional details deleted")
}

func (s *Server) restoreProfessional(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.RestoreProfessional(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Professional details restored")
}

// ==========================
// Subscription details
// ==========================

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var in service.SubscriptionInput
	if err := s.decode(r, validation.SchemaSubscriptionDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.CreateSubscription(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, rec, "Subscription details created")
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.GetSubscription(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "")
}

func (s *Server) updateSubscription(w http.ResponseWriter, r *http.Request) {
	var in service.SubscriptionInput
	if err := s.decode(r, validation.SchemaSubscriptionDetails, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	rec, err := s.svc.UpdateSubscription(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Subscription details updated")
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteSubscription(r.Context(), actor(r), applicationID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil, "Subscription details deleted")
}

func (s *Server) restoreSubscription(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.RestoreSubscription(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, rec, "Subscription details restored")
}

// ==========================
// Applications
// ==========================

func (s *Server) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ListFilter{
		Status: models.ApplicationStatus(q.Get("status")),
		UserID: q.Get("userId"),
	}
	for name, dest := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				s.fail(w, r, apperrors.NewValidationError(name+" must be an integer"))
				return
			}
			*dest = n
		}
	}

	apps, err := s.svc.ListApplications(r.Context(), actor(r), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	writeSuccess(w, http.StatusOK, apps, "")
}

func (s *Server) getApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.svc.GetApplication(r.Context(), actor(r), applicationID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, app, "")
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in service.StatusInput
	if err := s.decode(r, validation.SchemaApplicationStatus, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	app, err := s.svc.UpdateStatus(r.Context(), actor(r), applicationID(r), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, app, "Application status updated")
}
