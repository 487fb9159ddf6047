package session

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Device classes recognized by audience targeting.
const (
	DeviceDesktop = "desktop"
	DeviceTablet  = "tablet"
	DeviceMobile  = "mobile"
)

// Cookie and header names carrying the session identifier.
const (
	CookieName = "syd_session"
	HeaderName = "X-Session-ID"
)

// Session identifies a visitor and carries the attributes audience targeting
// evaluates against. The experiment engine treats it as read-only input.
type Session struct {
	ID       string            `json:"id"`
	Device   string            `json:"device"`
	Referrer string            `json:"referrer,omitempty"`
	UTM      map[string]string `json:"utm,omitempty"`
}

// FromRequest extracts the session identity and targeting attributes carried
// by an HTTP request. The id comes from the session cookie, then the
// X-Session-ID header; a fresh id is minted when the request carries neither.
func FromRequest(r *http.Request) Session {
	var s Session
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		s.ID = c.Value
	}
	if s.ID == "" {
		s.ID = r.Header.Get(HeaderName)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Device = DeviceFromUserAgent(r.UserAgent())
	s.Referrer = r.Referer()
	for key, vals := range r.URL.Query() {
		if strings.HasPrefix(key, "utm_") && len(vals) > 0 {
			if s.UTM == nil {
				s.UTM = make(map[string]string)
			}
			s.UTM[key] = vals[0]
		}
	}
	return s
}

// DeviceFromUserAgent classifies a User-Agent string into one of the device
// classes. Unknown agents count as desktop.
func DeviceFromUserAgent(ua string) string {
	l := strings.ToLower(ua)
	switch {
	case strings.Contains(l, "ipad"), strings.Contains(l, "tablet"):
		return DeviceTablet
	case strings.Contains(l, "android") && !strings.Contains(l, "mobile"):
		// Android tablets report "Android" without the "Mobile" token.
		return DeviceTablet
	case strings.Contains(l, "mobi"), strings.Contains(l, "iphone"), strings.Contains(l, "ipod"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
