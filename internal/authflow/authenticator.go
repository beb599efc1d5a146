// Package authflow orquesta el step-up de OTP por email.
//
// El Authenticator decide, por turno, qué pasa con un intento de login:
// saltear por rol, satisfacer por confianza previa (device/IP), desafiar
// con un código, o verificar el código enviado. No toca el session.Store:
// muta el State recibido y el caller decide cuándo persistir o destruir.
package authflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/mailotp/internal/audit"
	"github.com/dropDatabas3/mailotp/internal/config"
	"github.com/dropDatabas3/mailotp/internal/metrics"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/otp"
	"github.com/dropDatabas3/mailotp/internal/security/devicetoken"
	"github.com/dropDatabas3/mailotp/internal/security/iphash"
	"github.com/dropDatabas3/mailotp/internal/session"
	"github.com/dropDatabas3/mailotp/internal/trust"
)

// Marcadores de ACR: registran qué camino satisfizo el step-up.
const (
	ACREmailOTP      = "email-otp"
	ACRTrustedDevice = "email-otp-trusted-device"
	ACRTrustedIP     = "email-otp-trusted-ip"
)

// permanentCookieMaxAge: ~10 años, para device trust sin vencimiento.
const permanentCookieMaxAge = 10 * 365 * 24 * 60 * 60

// Status es el veredicto de un turno del flujo.
type Status int

const (
	// StatusChallenge: el intento sigue abierto, se espera un código.
	StatusChallenge Status = iota
	// StatusSuccess: el step-up quedó satisfecho.
	StatusSuccess
	// StatusSkipped: el filtro de rol excluyó al principal. En modo
	// required cuenta como satisfecho; en alternative, como no intentado.
	StatusSkipped
	// StatusFailure: fallo terminal para este intento.
	StatusFailure
)

// Razones de fallo / error de challenge.
const (
	ReasonDisabled   = "principal_disabled"
	ReasonEmailSend  = "email_send_failed"
	CodeErrorInvalid = "invalid_code"
	CodeErrorExpired = "expired_code"
)

// Outcome es el resultado de un turno, listo para que la capa HTTP lo
// traduzca a respuesta.
type Outcome struct {
	Status Status

	// ACR acompaña a StatusSuccess.
	ACR          string
	AccessToken  string
	TokenExpires time.Time

	// CodeError marca un challenge recuperable (código inválido/vencido).
	CodeError string
	// Reason acompaña a StatusFailure, o a un challenge degradado
	// (no se pudo enviar el email).
	Reason string

	// EmailSent indica que este turno despachó un código.
	EmailSent bool

	// SetDeviceCookie es la forma firmada a setear en el cliente, con
	// DeviceCookieMaxAge en segundos. Vacío si no corresponde.
	SetDeviceCookie    string
	DeviceCookieMaxAge int
}

// Submission es lo que el cliente manda en el turno de verificación.
type Submission struct {
	Code        string
	Resend      bool
	TrustDevice bool
}

// Request es el contexto del turno: quién, desde dónde, con qué cookie.
type Request struct {
	Principal Principal
	// ClientIP ya resuelto por la capa HTTP (proxy-aware). Puede ser "".
	ClientIP string
	// DeviceToken es la forma firmada que vino en la cookie. Puede ser "".
	DeviceToken string
}

// CodeMailer despacha el código al principal.
type CodeMailer interface {
	SendCode(to, code string, ttl time.Duration) error
}

// TokenIssuer emite el token de éxito del step-up.
type TokenIssuer interface {
	IssueAccess(ctx context.Context, tenantID, sub, acr string, amr []string) (string, time.Time, error)
}

type Authenticator struct {
	cfg    config.Authenticator
	codes  *otp.Manager
	trust  *trust.Service
	signer *devicetoken.Signer
	mailer CodeMailer
	issuer TokenIssuer
	roles  RoleOracle
	dir    Directory
}

func NewAuthenticator(
	cfg config.Authenticator,
	codes *otp.Manager,
	trustSvc *trust.Service,
	signer *devicetoken.Signer,
	mailer CodeMailer,
	issuer TokenIssuer,
	roles RoleOracle,
	dir Directory,
) *Authenticator {
	return &Authenticator{
		cfg:    cfg,
		codes:  codes,
		trust:  trustSvc,
		signer: signer,
		mailer: mailer,
		issuer: issuer,
		roles:  roles,
		dir:    dir,
	}
}

// guard chequea el estado del principal antes de cualquier decisión.
// Deshabilitado (brute force incluido) marca el intento como terminal.
// Si reaparece habilitado, el flag se limpia y el intento sigue.
func (a *Authenticator) guard(st *session.State, p Principal) bool {
	if !p.Enabled {
		st.Invalid = true
		return false
	}
	if st.Invalid {
		st.Invalid = false
	}
	return true
}

// Begin corre el primer turno: aplicabilidad, bypasses de confianza, y si
// nada aplica, emite y despacha el código.
func (a *Authenticator) Begin(ctx context.Context, st *session.State, req Request) (*Outcome, error) {
	log := logger.From(ctx).With(
		logger.Component("authflow"),
		logger.TenantID(st.TenantID),
		logger.PrincipalID(st.PrincipalID),
	)

	if !a.guard(st, req.Principal) {
		log.Warn("principal disabled, attempt invalidated")
		audit.Log(ctx, audit.EventAttemptRejected, st.TenantID, st.PrincipalID,
			logger.String("reason", ReasonDisabled))
		return &Outcome{Status: StatusFailure, Reason: ReasonDisabled}, nil
	}

	if !shouldRequireOTP(ctx, &a.cfg, a.roles, st.TenantID, req.Principal) {
		log.Debug("role filter excluded principal", logger.String("mode", string(st.Mode)))
		return &Outcome{Status: StatusSkipped}, nil
	}

	if shouldApplyTrust(&a.cfg, st.Mode) {
		if out := a.tryDeviceTrust(ctx, st, req); out != nil {
			return out, nil
		}
		if out := a.tryIPTrust(ctx, st, req); out != nil {
			return out, nil
		}
	}

	return a.challenge(ctx, st, req, false)
}

// tryDeviceTrust: cookie firmada → verificar firma → consultar registro.
// Cualquier paso que no valide cae al siguiente camino sin error.
func (a *Authenticator) tryDeviceTrust(ctx context.Context, st *session.State, req Request) *Outcome {
	if !a.cfg.DeviceTrustEnabled || req.DeviceToken == "" {
		return nil
	}
	raw := a.signer.Verify(ctx, req.DeviceToken)
	if raw == "" {
		return nil
	}
	if !a.trust.IsDeviceTrusted(ctx, st.TenantID, st.PrincipalID, raw) {
		return nil
	}
	metrics.TrustHits.WithLabelValues("device").Inc()
	audit.Log(ctx, audit.EventBypassDevice, st.TenantID, st.PrincipalID)
	return a.success(ctx, st, ACRTrustedDevice, []string{"device"})
}

// tryIPTrust: hash tenant-salteado de la IP → registro vigente → éxito,
// empujando la ventana rolling.
func (a *Authenticator) tryIPTrust(ctx context.Context, st *session.State, req Request) *Outcome {
	if !a.cfg.IPTrustEnabled || req.ClientIP == "" {
		return nil
	}
	hash := iphash.Hash(st.TenantID, req.ClientIP)
	if !a.trust.IsIPTrusted(ctx, st.TenantID, st.PrincipalID, hash) {
		return nil
	}
	a.trust.RefreshIPTrust(ctx, st.TenantID, st.PrincipalID, hash, a.ipWindow())
	metrics.TrustHits.WithLabelValues("ip").Inc()
	audit.Log(ctx, audit.EventBypassIP, st.TenantID, st.PrincipalID)
	return a.success(ctx, st, ACRTrustedIP, []string{"ip"})
}

// challenge emite (o reutiliza) el código y lo despacha si es fresco.
// Un refresh del mismo intento no regenera ni reenvía; force sí.
func (a *Authenticator) challenge(ctx context.Context, st *session.State, req Request, force bool) (*Outcome, error) {
	code, fresh, err := a.codes.Issue(st, force)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return &Outcome{Status: StatusChallenge}, nil
	}

	if err := a.mailer.SendCode(req.Principal.Email, code, a.codes.Lifetime); err != nil {
		metrics.EmailSendFailures.Inc()
		logger.From(ctx).Error("could not send otp email",
			logger.Component("authflow"), logger.TenantID(st.TenantID),
			logger.PrincipalID(st.PrincipalID), logger.Err(err))
		// El código queda pendiente en el State: el cliente puede pedir
		// resend sin reiniciar el intento.
		return &Outcome{Status: StatusChallenge, Reason: ReasonEmailSend}, nil
	}

	metrics.OTPIssued.Inc()
	audit.Log(ctx, audit.EventChallengeIssued, st.TenantID, st.PrincipalID,
		logger.Bool("forced", force))
	return &Outcome{Status: StatusChallenge, EmailSent: true}, nil
}

// Continue corre un turno de verificación sobre un intento abierto.
func (a *Authenticator) Continue(ctx context.Context, st *session.State, req Request, sub Submission) (*Outcome, error) {
	log := logger.From(ctx).With(
		logger.Component("authflow"),
		logger.TenantID(st.TenantID),
		logger.PrincipalID(st.PrincipalID),
	)

	if !a.guard(st, req.Principal) {
		log.Warn("principal disabled during verification")
		audit.Log(ctx, audit.EventAttemptRejected, st.TenantID, st.PrincipalID,
			logger.String("reason", ReasonDisabled))
		return &Outcome{Status: StatusFailure, Reason: ReasonDisabled}, nil
	}

	if sub.Resend {
		return a.challenge(ctx, st, req, true)
	}

	switch result := a.codes.Verify(st, sub.Code); result {
	case otp.Valid:
		metrics.OTPVerified.WithLabelValues("valid").Inc()
		audit.Log(ctx, audit.EventCodeVerified, st.TenantID, st.PrincipalID)
		return a.complete(ctx, st, req, sub), nil

	case otp.Expired:
		metrics.OTPVerified.WithLabelValues("expired").Inc()
		log.Debug("otp expired, regenerating")
		out, err := a.challenge(ctx, st, req, true)
		if err != nil {
			return nil, err
		}
		out.CodeError = CodeErrorExpired
		return out, nil

	default:
		metrics.OTPVerified.WithLabelValues("invalid").Inc()
		audit.Log(ctx, audit.EventCodeRejected, st.TenantID, st.PrincipalID)
		return &Outcome{Status: StatusChallenge, CodeError: CodeErrorInvalid}, nil
	}
}

// complete corre los efectos post-verificación: marcar el email como
// verificado, crear los registros de confianza y emitir el token.
func (a *Authenticator) complete(ctx context.Context, st *session.State, req Request, sub Submission) *Outcome {
	if !req.Principal.EmailVerified && a.dir != nil {
		if err := a.dir.SetEmailVerified(ctx, st.TenantID, st.PrincipalID); err != nil {
			logger.From(ctx).Warn("could not mark email verified",
				logger.Component("authflow"), logger.TenantID(st.TenantID), logger.Err(err))
		}
	}

	out := a.success(ctx, st, ACREmailOTP, []string{"email", "otp"})
	if out.Status != StatusSuccess {
		return out
	}

	// Los registros de confianza solo nacen del camino OTP: un bypass
	// nunca crea confianza nueva (la de IP solo se refresca en su hit).
	// La elegibilidad gobierna los fast-paths, no la creación: un OTP
	// verificado registra confianza aunque este intento no pudiera
	// saltearse, y un login posterior en otro contexto sí la aprovecha.
	a.persistTrust(ctx, st, req, sub, out)
	return out
}

func (a *Authenticator) persistTrust(ctx context.Context, st *session.State, req Request, sub Submission, out *Outcome) {
	if a.cfg.IPTrustEnabled && req.ClientIP != "" {
		hash := iphash.Hash(st.TenantID, req.ClientIP)
		a.trust.TrustIP(ctx, st.TenantID, st.PrincipalID, hash, a.ipWindow())
		audit.Log(ctx, audit.EventTrustCreated, st.TenantID, st.PrincipalID,
			logger.String("kind", "ip"))
	}

	// Device trust es opt-in del usuario, por turno.
	if !a.cfg.DeviceTrustEnabled || !sub.TrustDevice {
		return
	}
	raw := uuid.NewString()
	window := time.Duration(a.cfg.DeviceTrustDurationDays) * 24 * time.Hour
	a.trust.TrustDevice(ctx, st.TenantID, st.PrincipalID, raw, window)
	audit.Log(ctx, audit.EventTrustCreated, st.TenantID, st.PrincipalID,
		logger.String("kind", "device"))

	signed := a.signer.Sign(ctx, raw)
	if signed == "" {
		// Sin clave de firma no hay cookie; el registro queda huérfano
		// hasta el cleanup pero el login ya está satisfecho.
		return
	}
	out.SetDeviceCookie = signed
	if a.cfg.DeviceTrustDurationDays > 0 {
		out.DeviceCookieMaxAge = a.cfg.DeviceTrustDurationDays * 24 * 60 * 60
	} else {
		out.DeviceCookieMaxAge = permanentCookieMaxAge
	}
}

// success registra el ACR en el State y emite el access token. Si el
// keystore no tiene clave activa el step-up falla: un éxito sin token no
// le sirve a nadie.
func (a *Authenticator) success(ctx context.Context, st *session.State, acr string, amr []string) *Outcome {
	st.ACR = acr

	token, exp, err := a.issuer.IssueAccess(ctx, st.TenantID, st.PrincipalID, acr, amr)
	if err != nil {
		logger.From(ctx).Error("could not issue access token",
			logger.Component("authflow"), logger.TenantID(st.TenantID),
			logger.ACR(acr), logger.Err(err))
		return &Outcome{Status: StatusFailure, Reason: "token_issue_failed"}
	}

	return &Outcome{
		Status:       StatusSuccess,
		ACR:          acr,
		AccessToken:  token,
		TokenExpires: exp,
	}
}

func (a *Authenticator) ipWindow() time.Duration {
	return time.Duration(a.cfg.IPTrustDurationMinutes) * time.Minute
}
