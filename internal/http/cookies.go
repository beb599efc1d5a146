package http

import (
	"net/http"
)

// DeviceCookieName guarda la forma firmada del device token.
const DeviceCookieName = "MAILOTP_DEVICE_TRUST"

// deviceCookie arma la cookie de device trust. Secure se decide por
// request: detrás de un proxy TLS la cookie sale Secure aunque el
// listener local sea HTTP.
func deviceCookie(r *http.Request, signedToken string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     DeviceCookieName,
		Value:    signedToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// readDeviceCookie retorna la forma firmada que presentó el cliente, o "".
func readDeviceCookie(r *http.Request) string {
	ck, err := r.Cookie(DeviceCookieName)
	if err != nil {
		return ""
	}
	return ck.Value
}
