package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/totp"
)

func principalID(r *http.Request) string {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return ""
	}
	return p.UserID
}

type statusResponse struct {
	Enabled           bool `json:"enabled"`
	RecoveryCodesLeft int  `json:"recoveryCodesLeft"`
	TrustedDevices    int  `json:"trustedDevices"`
}

func (s *Server) handleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.TwoFactorStatus(r.Context(), principalID(r))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Enabled:           st.Enabled,
		RecoveryCodesLeft: st.RecoveryCodesLeft,
		TrustedDevices:    st.TrustedDevices,
	})
}

type setupResponse struct {
	SharedKey        string    `json:"sharedKey"`
	AuthenticatorURI string    `json:"authenticatorUri"`
	QRCodeDataURI    string    `json:"qrCodeDataUri,omitempty"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func (s *Server) handleSetupInitiate(w http.ResponseWriter, r *http.Request) {
	setup, err := s.engine.BeginTOTPSetup(r.Context(), principalID(r))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, setupResponse{
		SharedKey:        setup.SharedKey,
		AuthenticatorURI: setup.AuthenticatorURI,
		QRCodeDataURI:    setup.QRCodeDataURI,
		ExpiresAt:        setup.ExpiresAt,
	})
}

type codeRequest struct {
	Code string `json:"code"`
}

type recoveryCodesResponse struct {
	Success       bool     `json:"success"`
	RecoveryCodes []string `json:"recoveryCodes"`
}

func (s *Server) handleSetupVerify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	codes, err := s.engine.ConfirmTOTPSetup(r.Context(), principalID(r), totp.Normalize(req.Code))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{Success: true, RecoveryCodes: codes})
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	if err := s.engine.DisableTwoFactor(r.Context(), principalID(r), req.Password); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	s.clearCookie(w, s.cfg.DeviceCookie)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err, true)
		return
	}
	codes, err := s.engine.RegenerateRecoveryCodes(r.Context(), principalID(r), req.Password)
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, recoveryCodesResponse{Success: true, RecoveryCodes: codes})
}

func (s *Server) handleForgetDevices(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.RevokeAllDeviceTokens(r.Context(), principalID(r))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	s.clearCookie(w, s.cfg.DeviceCookie)
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}
