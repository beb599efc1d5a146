package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/mailotp/internal/authflow"
	"github.com/dropDatabas3/mailotp/internal/cache"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/session"
	"github.com/dropDatabas3/mailotp/internal/util"
)

type startRequest struct {
	Email string `json:"email"`
	// Mode: "required" (default) | "alternative"
	Mode string `json:"mode,omitempty"`
}

type verifyRequest struct {
	AttemptToken string `json:"attempt_token"`
	Code         string `json:"code,omitempty"`
	Resend       bool   `json:"resend,omitempty"`
	TrustDevice  bool   `json:"trust_device,omitempty"`
}

type turnResponse struct {
	Status       string `json:"status"`
	AttemptToken string `json:"attempt_token,omitempty"`
	EmailSent    bool   `json:"email_sent,omitempty"`
	CodeError    string `json:"code_error,omitempty"`
	Reason       string `json:"reason,omitempty"`

	ACR         string `json:"acr,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
}

func statusString(s authflow.Status) string {
	switch s {
	case authflow.StatusSuccess:
		return "success"
	case authflow.StatusSkipped:
		return "skipped"
	case authflow.StatusFailure:
		return "failure"
	default:
		return "challenge"
	}
}

// handleStart abre un intento: POST /v1/auth/{tenant}/otp/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenant")
	log := logger.From(ctx).With(logger.Layer("handler"), logger.Op("otp.start"), logger.TenantID(tenantID))

	var req startRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}
	// En logs el email va siempre enmascarado
	log = log.With(logger.String("email", util.MaskEmail(req.Email)))

	mode := session.ModeRequired
	if req.Mode == string(session.ModeAlternative) {
		mode = session.ModeAlternative
	}

	principal, err := s.directory.LookupByEmail(ctx, tenantID, req.Email)
	if err != nil {
		if errors.Is(err, authflow.ErrPrincipalNotFound) {
			// Respuesta genérica: no revelar si el email existe
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
			return
		}
		log.Error("directory lookup failed", logger.Err(err))
		writeError(w, http.StatusServiceUnavailable, "directory_unavailable", "try again later")
		return
	}

	st, err := s.sessions.Create(ctx, tenantID, principal.ID, mode)
	if err != nil {
		log.Error("could not create attempt", logger.Err(err))
		writeError(w, http.StatusServiceUnavailable, "attempt_store_unavailable", "try again later")
		return
	}

	out, err := s.auth.Begin(ctx, st, authflow.Request{
		Principal:   principal,
		ClientIP:    clientIP(r),
		DeviceToken: readDeviceCookie(r),
	})
	if err != nil {
		log.Error("begin turn failed", logger.Err(err))
		_ = s.sessions.Delete(ctx, st.ID)
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	s.respondTurn(w, r, st, out)
}

// handleVerify corre un turno de verificación: POST /v1/auth/{tenant}/otp/verify
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenant")
	log := logger.From(ctx).With(logger.Layer("handler"), logger.Op("otp.verify"), logger.TenantID(tenantID))

	var req verifyRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.AttemptToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "attempt_token is required")
		return
	}

	st, err := s.sessions.Get(ctx, req.AttemptToken)
	if err != nil {
		if cache.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "attempt_not_found", "attempt expired or unknown")
			return
		}
		log.Error("could not load attempt", logger.Err(err))
		writeError(w, http.StatusServiceUnavailable, "attempt_store_unavailable", "try again later")
		return
	}
	if st.TenantID != tenantID {
		// El attempt token no pertenece a este tenant
		writeError(w, http.StatusNotFound, "attempt_not_found", "attempt expired or unknown")
		return
	}
	log = log.With(logger.AttemptID(st.ID))

	// El estado del principal se relee en cada turno: deshabilitaciones
	// a mitad de flujo (brute force del host) tienen que pegar acá.
	principal, err := s.directory.LookupByID(ctx, st.TenantID, st.PrincipalID)
	if err != nil {
		if errors.Is(err, authflow.ErrPrincipalNotFound) {
			_ = s.sessions.Delete(ctx, st.ID)
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
			return
		}
		log.Error("directory lookup failed", logger.Err(err))
		writeError(w, http.StatusServiceUnavailable, "directory_unavailable", "try again later")
		return
	}

	out, err := s.auth.Continue(ctx, st, authflow.Request{
		Principal:   principal,
		ClientIP:    clientIP(r),
		DeviceToken: readDeviceCookie(r),
	}, authflow.Submission{
		Code:        req.Code,
		Resend:      req.Resend,
		TrustDevice: req.TrustDevice,
	})
	if err != nil {
		log.Error("verify turn failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	s.respondTurn(w, r, st, out)
}

// respondTurn persiste o destruye el intento según el veredicto y arma la
// respuesta. Terminal (success/skipped/failure) destruye el State; un
// challenge abierto lo guarda con el código pendiente.
func (s *Server) respondTurn(w http.ResponseWriter, r *http.Request, st *session.State, out *authflow.Outcome) {
	ctx := r.Context()

	resp := turnResponse{
		Status:    statusString(out.Status),
		EmailSent: out.EmailSent,
		CodeError: out.CodeError,
		Reason:    out.Reason,
	}

	switch out.Status {
	case authflow.StatusChallenge:
		if err := s.sessions.Save(ctx, st); err != nil {
			logger.From(ctx).Error("could not save attempt",
				logger.Component("http"), logger.Err(err))
			writeError(w, http.StatusServiceUnavailable, "attempt_store_unavailable", "try again later")
			return
		}
		resp.AttemptToken = st.ID

		w.Header().Set("Cache-Control", "no-store")
		status := http.StatusOK
		if out.Reason == authflow.ReasonEmailSend {
			// El intento sigue vivo; el cliente puede pedir resend
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)

	case authflow.StatusSuccess:
		_ = s.sessions.Delete(ctx, st.ID)
		if out.SetDeviceCookie != "" {
			http.SetCookie(w, deviceCookie(r, out.SetDeviceCookie, out.DeviceCookieMaxAge))
		}
		resp.ACR = out.ACR
		resp.AccessToken = out.AccessToken
		resp.ExpiresAt = out.TokenExpires.Unix()

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, resp)

	case authflow.StatusSkipped:
		_ = s.sessions.Delete(ctx, st.ID)
		writeJSON(w, http.StatusOK, resp)

	default: // StatusFailure
		if out.Reason == authflow.ReasonDisabled {
			// El intento sobrevive: si el host re-habilita al principal,
			// el próximo turno limpia el flag y el flujo sigue
			if err := s.sessions.Save(ctx, st); err == nil {
				resp.AttemptToken = st.ID
			}
			writeJSON(w, http.StatusForbidden, resp)
			return
		}
		_ = s.sessions.Delete(ctx, st.ID)
		writeJSON(w, http.StatusForbidden, resp)
	}
}
