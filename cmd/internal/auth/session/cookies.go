package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookies sets, reads and clears the access and refresh cookies.
// Both are HttpOnly and SameSite=Lax.
type Cookies struct {
	AccessName  string
	RefreshName string
	Domain      string
	Path        string
	Secure      bool
}

// Set writes both token cookies with Max-Age matching each token's lifetime.
func (c Cookies) Set(w http.ResponseWriter, now time.Time, is Issued) {
	if w == nil {
		return
	}
	c.set(w, c.AccessName, is.AccessToken, now, is.AccessExpiresAt)
	c.set(w, c.RefreshName, is.RefreshToken, now, is.RefreshExpiresAt)
}

// Clear expires both token cookies.
func (c Cookies) Clear(w http.ResponseWriter) {
	if w == nil {
		return
	}
	c.expire(w, c.AccessName)
	c.expire(w, c.RefreshName)
}

// Access returns the raw access token, if present.
func (c Cookies) Access(r *http.Request) (string, bool) { return c.read(r, c.AccessName) }

// Refresh returns the raw refresh token, if present.
func (c Cookies) Refresh(r *http.Request) (string, bool) { return c.read(r, c.RefreshName) }

func (c Cookies) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func (c Cookies) set(w http.ResponseWriter, name, value string, now, exp time.Time) {
	maxAge := int(exp.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.path(),
		Domain:   c.Domain,
		Expires:  exp.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) expire(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     c.path(),
		Domain:   c.Domain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookies) read(r *http.Request, name string) (string, bool) {
	if r == nil || name == "" {
		return "", false
	}
	ck, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(ck.Value)
	if v == "" {
		return "", false
	}
	return v, true
}
