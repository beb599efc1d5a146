package authflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/mailotp/internal/authflow"
	"github.com/dropDatabas3/mailotp/internal/config"
	jwtx "github.com/dropDatabas3/mailotp/internal/jwt"
	"github.com/dropDatabas3/mailotp/internal/otp"
	"github.com/dropDatabas3/mailotp/internal/security/devicetoken"
	"github.com/dropDatabas3/mailotp/internal/security/iphash"
	"github.com/dropDatabas3/mailotp/internal/session"
	"github.com/dropDatabas3/mailotp/internal/store/memory"
	"github.com/dropDatabas3/mailotp/internal/trust"
)

type fakeMailer struct {
	fail  bool
	sent  int
	to    string
	code  string
	calls []string
}

func (m *fakeMailer) SendCode(to, code string, _ time.Duration) error {
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent++
	m.to = to
	m.code = code
	m.calls = append(m.calls, code)
	return nil
}

type fixture struct {
	cfg    config.Authenticator
	dir    *authflow.StaticDirectory
	trust  *trust.Service
	keys   *jwtx.Keystore
	signer *devicetoken.Signer
	mailer *fakeMailer
	codes  *otp.Manager
	auth   *authflow.Authenticator
	now    time.Time
}

func defaultCfg() config.Authenticator {
	return config.Authenticator{
		CodeAlphabet:            otp.DefaultAlphabet,
		CodeLength:              6,
		CodeLifetimeSeconds:     600,
		IPTrustEnabled:          true,
		IPTrustDurationMinutes:  60,
		DeviceTrustEnabled:      true,
		DeviceTrustDurationDays: 0,
	}
}

func newFixture(t *testing.T, cfg config.Authenticator) *fixture {
	t.Helper()

	ks := jwtx.NewKeystore(memory.NewKeyStore())
	require.NoError(t, ks.EnsureBootstrap(context.Background()))

	f := &fixture{
		cfg: cfg,
		dir: authflow.NewStaticDirectory([]authflow.StaticPrincipal{
			{TenantID: "acme", ID: "u-1", Email: "ana@example.com", Enabled: true, Roles: []string{"staff"}},
			{TenantID: "acme", ID: "u-2", Email: "bob@example.com", Enabled: true},
		}),
		trust:  trust.NewService(memory.New()),
		keys:   ks,
		signer: devicetoken.NewSigner(ks),
		mailer: &fakeMailer{},
		now:    time.Unix(1_700_000_000, 0),
	}
	f.codes = otp.NewManager(cfg.CodeAlphabet, cfg.CodeLength,
		time.Duration(cfg.CodeLifetimeSeconds)*time.Second)
	f.codes.Now = func() time.Time { return f.now }

	issuer := jwtx.NewIssuer("mailotp", ks)
	f.auth = authflow.NewAuthenticator(cfg, f.codes, f.trust, f.signer,
		f.mailer, issuer, f.dir, f.dir)
	return f
}

func (f *fixture) state(mode session.Mode) *session.State {
	return &session.State{
		ID:          "attempt-1",
		TenantID:    "acme",
		PrincipalID: "u-1",
		Mode:        mode,
		CreatedAt:   time.Now().UTC(),
	}
}

func (f *fixture) request(t *testing.T) authflow.Request {
	t.Helper()
	p, err := f.dir.LookupByID(context.Background(), "acme", "u-1")
	require.NoError(t, err)
	return authflow.Request{Principal: p, ClientIP: "203.0.113.7"}
}

func TestBeginIssuesChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)

	out, err := f.auth.Begin(context.Background(), st, f.request(t))
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.True(t, out.EmailSent)
	require.Equal(t, "ana@example.com", f.mailer.to)
	require.Len(t, f.mailer.code, 6)
	require.Equal(t, f.mailer.code, st.OTPCode)
}

func TestBeginIsIdempotentPerAttempt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()

	_, err := f.auth.Begin(ctx, st, f.request(t))
	require.NoError(t, err)
	first := st.OTPCode

	// Refresh del mismo intento: mismo código, ningún email nuevo
	out, err := f.auth.Begin(ctx, st, f.request(t))
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.False(t, out.EmailSent)
	require.Equal(t, first, st.OTPCode)
	require.Equal(t, 1, f.mailer.sent)
}

func TestValidCodeSucceedsAndPersistsTrust(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)

	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.Equal(t, authflow.ACREmailOTP, out.ACR)
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, authflow.ACREmailOTP, st.ACR)

	// El código quedó consumido
	require.Empty(t, st.OTPCode)

	// La IP quedó registrada para el próximo login
	hash := iphash.Hash("acme", req.ClientIP)
	require.True(t, f.trust.IsIPTrusted(ctx, "acme", "u-1", hash))

	// El email quedó marcado como verificado en el directorio
	p, err := f.dir.LookupByID(ctx, "acme", "u-1")
	require.NoError(t, err)
	require.True(t, p.EmailVerified)
}

func TestInvalidCodeIsRecoverable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)

	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: "WRONG9"})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.Equal(t, authflow.CodeErrorInvalid, out.CodeError)

	// El mismo código pendiente sigue valiendo
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
}

func TestEmptyCodeIsInvalid(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)

	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: ""})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.Equal(t, authflow.CodeErrorInvalid, out.CodeError)
}

func TestExpiredCodeRegenerates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	old := f.mailer.code

	f.now = f.now.Add(601 * time.Second)

	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: old})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.Equal(t, authflow.CodeErrorExpired, out.CodeError)
	require.True(t, out.EmailSent)
	require.NotEqual(t, old, st.OTPCode)

	// El regenerado entra
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
}

func TestResendForcesNewCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	old := f.mailer.code

	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Resend: true})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.True(t, out.EmailSent)
	require.Equal(t, 2, f.mailer.sent)

	// El código anterior quedó pisado: nunca conviven dos
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: old})
	require.NoError(t, err)
	require.Equal(t, authflow.CodeErrorInvalid, out.CodeError)

	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
}

func TestDisabledPrincipalIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	st := f.state(session.ModeRequired)
	ctx := context.Background()

	f.dir.SetEnabled("acme", "u-1", false)
	req := f.request(t)

	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusFailure, out.Status)
	require.Equal(t, authflow.ReasonDisabled, out.Reason)
	require.True(t, st.Invalid)

	// Re-habilitado: el flag se limpia y el flujo continúa normal
	f.dir.SetEnabled("acme", "u-1", true)
	req = f.request(t)
	out, err = f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.False(t, st.Invalid)
}

func TestRoleFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	// Solo "staff" pasa por OTP: u-2 (sin rol) se saltea
	cfg := defaultCfg()
	cfg.Role = "staff"
	f := newFixture(t, cfg)

	st := f.state(session.ModeRequired)
	out, err := f.auth.Begin(ctx, st, f.request(t))
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)

	p2, err := f.dir.LookupByID(ctx, "acme", "u-2")
	require.NoError(t, err)
	st2 := &session.State{ID: "attempt-2", TenantID: "acme", PrincipalID: "u-2", Mode: session.ModeRequired}
	out, err = f.auth.Begin(ctx, st2, authflow.Request{Principal: p2, ClientIP: "203.0.113.7"})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSkipped, out.Status)

	// Con negate, la tabla se invierte: staff se saltea, el resto no
	cfg.NegateRole = true
	f2 := newFixture(t, cfg)
	st = f2.state(session.ModeRequired)
	out, err = f2.auth.Begin(ctx, st, f2.request(t))
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSkipped, out.Status)
}

func TestTrustedDeviceBypassesOTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	ctx := context.Background()
	req := f.request(t)

	// Dispositivo ya registrado con cookie firmada
	f.trust.TrustDevice(ctx, "acme", "u-1", "known-device", 0)
	req.DeviceToken = f.signer.Sign(ctx, "known-device")

	st := f.state(session.ModeRequired)
	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.Equal(t, authflow.ACRTrustedDevice, out.ACR)
	require.NotEmpty(t, out.AccessToken)
	require.Equal(t, 0, f.mailer.sent)
}

func TestUnknownDeviceCookieFallsThrough(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	ctx := context.Background()
	req := f.request(t)

	// Firma válida pero el registro no existe: sigue al camino OTP
	req.DeviceToken = f.signer.Sign(ctx, "never-registered")

	st := f.state(session.ModeRequired)
	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.True(t, out.EmailSent)
}

func TestTrustedIPBypassesOTP(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	ctx := context.Background()
	req := f.request(t)

	hash := iphash.Hash("acme", req.ClientIP)
	f.trust.TrustIP(ctx, "acme", "u-1", hash, time.Hour)

	st := f.state(session.ModeRequired)
	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.Equal(t, authflow.ACRTrustedIP, out.ACR)
	require.Equal(t, 0, f.mailer.sent)

	// El hit empujó la ventana rolling: sigue confiable
	require.True(t, f.trust.IsIPTrusted(ctx, "acme", "u-1", hash))
}

func TestTrustOnlyWhenSoleSuppressesBypass(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.TrustOnlyWhenSole = true
	f := newFixture(t, cfg)
	ctx := context.Background()
	req := f.request(t)

	f.trust.TrustDevice(ctx, "acme", "u-1", "known-device", 0)
	req.DeviceToken = f.signer.Sign(ctx, "known-device")
	hash := iphash.Hash("acme", req.ClientIP)
	f.trust.TrustIP(ctx, "acme", "u-1", hash, time.Hour)

	// En modo alternative el usuario eligió OTP: nada de bypass
	st := f.state(session.ModeAlternative)
	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)

	// Pero el éxito por OTP sí crea confianza: la supresión es del
	// bypass, no del registro
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code, TrustDevice: true})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.NotEmpty(t, out.SetDeviceCookie)
	raw := f.signer.Verify(ctx, out.SetDeviceCookie)
	require.True(t, f.trust.IsDeviceTrusted(ctx, "acme", "u-1", raw))

	// En modo required el bypass sí corre
	st2 := f.state(session.ModeRequired)
	out, err = f.auth.Begin(ctx, st2, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
}

func TestAlternativeModeSuccessStillCreatesTrust(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.TrustOnlyWhenSole = true
	f := newFixture(t, cfg)
	ctx := context.Background()
	req := f.request(t)

	// Sin confianza previa, modo alternative: OTP completo
	st := f.state(session.ModeAlternative)
	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)

	// La IP quedó registrada igual
	hash := iphash.Hash("acme", req.ClientIP)
	require.True(t, f.trust.IsIPTrusted(ctx, "acme", "u-1", hash))

	// Y un login posterior en modo required la aprovecha
	st2 := f.state(session.ModeRequired)
	out, err = f.auth.Begin(ctx, st2, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.Equal(t, authflow.ACRTrustedIP, out.ACR)
	require.Equal(t, 1, f.mailer.sent)
}

func TestDeviceTrustOptIn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	ctx := context.Background()
	req := f.request(t)

	// Sin opt-in no hay cookie
	st := f.state(session.ModeRequired)
	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.Empty(t, out.SetDeviceCookie)

	// Con opt-in: cookie firmada, registro permanente (days=0)
	st = f.state(session.ModeRequired)
	_, err = f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code, TrustDevice: true})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)
	require.NotEmpty(t, out.SetDeviceCookie)
	require.Equal(t, 10*365*24*60*60, out.DeviceCookieMaxAge)

	// La cookie emitida sirve para el bypass del próximo login
	raw := f.signer.Verify(ctx, out.SetDeviceCookie)
	require.NotEmpty(t, raw)
	require.True(t, f.trust.IsDeviceTrusted(ctx, "acme", "u-1", raw))
}

func TestDeviceTrustBoundedWindow(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.DeviceTrustDurationDays = 30
	f := newFixture(t, cfg)
	ctx := context.Background()
	req := f.request(t)

	st := f.state(session.ModeRequired)
	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code, TrustDevice: true})
	require.NoError(t, err)
	require.Equal(t, 30*24*60*60, out.DeviceCookieMaxAge)
}

func TestEmailSendFailureKeepsAttemptAlive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultCfg())
	f.mailer.fail = true
	st := f.state(session.ModeRequired)
	ctx := context.Background()
	req := f.request(t)

	out, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	require.Equal(t, authflow.StatusChallenge, out.Status)
	require.Equal(t, authflow.ReasonEmailSend, out.Reason)
	require.False(t, out.EmailSent)

	// El código quedó pendiente: un resend posterior puede despacharlo
	require.NotEmpty(t, st.OTPCode)

	f.mailer.fail = false
	out, err = f.auth.Continue(ctx, st, req, authflow.Submission{Resend: true})
	require.NoError(t, err)
	require.True(t, out.EmailSent)
}

func TestIPTrustDisabledDoesNotPersist(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.IPTrustEnabled = false
	f := newFixture(t, cfg)
	ctx := context.Background()
	req := f.request(t)

	st := f.state(session.ModeRequired)
	_, err := f.auth.Begin(ctx, st, req)
	require.NoError(t, err)
	out, err := f.auth.Continue(ctx, st, req, authflow.Submission{Code: f.mailer.code})
	require.NoError(t, err)
	require.Equal(t, authflow.StatusSuccess, out.Status)

	hash := iphash.Hash("acme", req.ClientIP)
	require.False(t, f.trust.IsIPTrusted(ctx, "acme", "u-1", hash))
}
