package util

import "strings"

// MaskEmail deja lo justo para correlacionar logs sin exponer la
// dirección: primera letra del usuario y del dominio, el TLD entero.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	user, dom, ok := strings.Cut(s, "@")
	if !ok || user == "" {
		// No parece un email; enmascarar como string opaco
		if len(s) <= 3 {
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}

	if len(user) > 1 {
		user = user[:1] + "…"
	}
	if first, rest, found := strings.Cut(dom, "."); found && len(first) > 1 {
		dom = first[:1] + "…." + rest
	}
	return user + "@" + dom
}
