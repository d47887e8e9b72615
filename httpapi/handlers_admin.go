package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goGuard/totp"
	"github.com/go-chi/chi/v5"
)

// requireAdministrator answers 403 to callers without the administrator
// role. It runs after the session guard.
func (s *Server) requireAdministrator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.engine.IsAdministrator(r.Context(), principalID(r))
		if err != nil {
			s.writeError(w, r, err, true)
			return
		}
		if !ok {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "administrator role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type revealRequest struct {
	ServiceName string `json:"serviceName"`
	Key         string `json:"key"`
	TOTPCode    string `json:"totpCode"`
}

type revealResponse struct {
	Value      string    `json:"value"`
	RevealedAt time.Time `json:"revealedAt"`
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	res, err := s.engine.Reveal(r.Context(), principalID(r), req.ServiceName, req.Key, totp.Normalize(req.TOTPCode))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, revealResponse{Value: res.Value, RevealedAt: res.RevealedAt})
}

type configEntry struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Source   string `json:"source"`
	Category string `json:"category"`
	Redacted bool   `json:"redacted"`
}

func (s *Server) handleListConfiguration(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.ListConfiguration(r.Context(), principalID(r), chi.URLParam(r, "service"))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	out := make([]configEntry, len(entries))
	for i, e := range entries {
		out[i] = configEntry(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSecurityReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.SecurityReport())
}

func (s *Server) handleLockUser(w http.ResponseWriter, r *http.Request) {
	until, err := s.engine.LockUser(r.Context(), principalID(r), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"lockedUntil": until.UTC()})
}

func (s *Server) handleUnlockUser(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnlockUser(r.Context(), principalID(r), chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	if err := s.engine.AssignRole(r.Context(), principalID(r), chi.URLParam(r, "userID"), req.Role); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	err := s.engine.RemoveRole(r.Context(), principalID(r), chi.URLParam(r, "userID"), chi.URLParam(r, "role"))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
