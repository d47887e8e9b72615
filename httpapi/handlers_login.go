package httpapi

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/totp"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type loginResponse struct {
	Success           bool `json:"success"`
	RequiresTwoFactor bool `json:"requiresTwoFactor"`
	DeviceTrusted     bool `json:"deviceTrusted,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}

	res, err := s.engine.Login(r.Context(), goGuard.LoginRequest{
		Email:       req.Email,
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		DeviceToken: cookieValue(r, s.cfg.DeviceCookie),
		Fingerprint: fingerprint(r),
	})
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}

	if res.State == goGuard.LoginTwoFactorRequired {
		c := s.cookie(s.cfg.ChallengeCookie, res.ChallengeID)
		c.Expires = res.ChallengeExpiresAt
		http.SetCookie(w, c)
		writeJSON(w, http.StatusOK, loginResponse{RequiresTwoFactor: true})
		return
	}

	if err := s.startSession(w, r, res, methodOf(res, false)); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true, DeviceTrusted: res.DeviceTrusted})
}

type verifyRequest struct {
	Code            string `json:"code"`
	RememberMachine bool   `json:"rememberMachine"`
}

func (s *Server) handleVerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	s.completeTwoFactor(w, r, goGuard.TwoFactorRequest{
		Code:           totp.Normalize(req.Code),
		Method:         goGuard.TwoFactorTOTP,
		RememberDevice: req.RememberMachine,
	})
}

type recoveryRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleRecoveryLogin(w http.ResponseWriter, r *http.Request) {
	var req recoveryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	s.completeTwoFactor(w, r, goGuard.TwoFactorRequest{
		Code:   req.Code,
		Method: goGuard.TwoFactorRecovery,
	})
}

func (s *Server) completeTwoFactor(w http.ResponseWriter, r *http.Request, req goGuard.TwoFactorRequest) {
	req.ChallengeID = cookieValue(r, s.cfg.ChallengeCookie)
	req.Fingerprint = fingerprint(r)
	if req.ChallengeID == "" {
		s.writeError(w, r, goGuard.ErrChallengeExpired, false)
		return
	}

	res, err := s.engine.CompleteTwoFactor(r.Context(), req)
	if err != nil {
		if challengeGone(err) {
			s.clearCookie(w, s.cfg.ChallengeCookie)
		}
		s.writeError(w, r, err, false)
		return
	}

	s.clearCookie(w, s.cfg.ChallengeCookie)
	if res.DeviceToken != "" {
		s.setDeviceCookie(w, res.DeviceToken, res.DeviceTokenExpiresAt)
	}
	if err := s.startSession(w, r, res, methodOf(res, true)); err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Success: true})
}

// challengeGone reports errors after which the client must restart at
// the password step.
func challengeGone(err error) bool {
	_, locked := goGuard.LockedUntil(err)
	return locked || errors.Is(err, goGuard.ErrChallengeExpired)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := s.sessions.Delete(r.Context(), p.SessionID); err != nil {
		s.writeError(w, r, goGuard.ErrBackendUnavailable, true)
		return
	}
	s.clearCookie(w, s.cfg.SessionCookie)
	w.WriteHeader(http.StatusNoContent)
}
