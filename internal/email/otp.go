package email

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// OTPVars son las variables del template del email de código.
type OTPVars struct {
	Code       string
	TTL        int // segundos
	TTLMinutes int
}

const otpSubject = "Your login code"

const otpTextTemplate = `Your one-time login code is: {{.Code}}

It expires in {{.TTLMinutes}} minutes. If you did not request it, you can ignore this email.
`

const otpHTMLTemplate = `<html>
<body style="font-family: sans-serif;">
  <p>Your one-time login code is:</p>
  <p style="font-size: 28px; letter-spacing: 4px; font-weight: bold;">{{.Code}}</p>
  <p>It expires in {{.TTLMinutes}} minutes. If you did not request it, you can ignore this email.</p>
</body>
</html>
`

var (
	otpText = template.Must(template.New("otp_text").Parse(otpTextTemplate))
	otpHTML = template.Must(template.New("otp_html").Parse(otpHTMLTemplate))
)

// OTPMailer renderiza y despacha el email con el código.
type OTPMailer struct {
	sender Sender
}

func NewOTPMailer(sender Sender) *OTPMailer {
	return &OTPMailer{sender: sender}
}

// SendCode envía el código al principal. El fallo se reporta sincrónico:
// el caller lo convierte en un error visible ("could not send code").
func (m *OTPMailer) SendCode(to, code string, ttl time.Duration) error {
	vars := OTPVars{
		Code:       code,
		TTL:        int(ttl.Seconds()),
		TTLMinutes: int(ttl.Minutes()),
	}

	var text, html bytes.Buffer
	if err := otpText.Execute(&text, vars); err != nil {
		return fmt.Errorf("render otp text: %w", err)
	}
	if err := otpHTML.Execute(&html, vars); err != nil {
		return fmt.Errorf("render otp html: %w", err)
	}

	return m.sender.Send(to, otpSubject, html.String(), text.String())
}
