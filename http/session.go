package http

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
)

// Session holds per-session HTTP state: a cookie jar and default headers
// applied to every request that does not set them explicitly.
type Session struct {
	jar     *cookiejar.Jar
	headers map[string]string
}

// NewSession creates a session with an empty cookie jar.
func NewSession(defaultHeaders map[string]string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	headers := make(map[string]string, len(defaultHeaders))
	for k, v := range defaultHeaders {
		headers[k] = v
	}

	return &Session{jar: jar, headers: headers}, nil
}

// SetCookie adds a cookie to the session's jar for the given site URL.
func (s *Session) SetCookie(siteURL string, cookie *http.Cookie) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("parse cookie url: %w", err)
	}
	s.jar.SetCookies(u, []*http.Cookie{cookie})
	return nil
}

// Jar returns the session's cookie jar.
func (s *Session) Jar() http.CookieJar {
	if s == nil {
		return nil
	}
	return s.jar
}

// Headers returns the session's default headers.
func (s *Session) Headers() map[string]string {
	if s == nil {
		return nil
	}
	return s.headers
}
