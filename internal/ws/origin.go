package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser pages may open a relay socket. Stage
// devices and the controller send no Origin header and are left to the
// token gate. A page served from the relay's own host is always allowed;
// anything else must be listed in server.allowed_origins, either as a full
// origin or as a bare host[:port]. "*" allows every origin.
type originPolicy struct {
	any   bool
	hosts map[string]bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{hosts: make(map[string]bool)}
	for _, entry := range origins {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
		case entry == "*":
			p.any = true
		case strings.Contains(entry, "://"):
			if u, err := url.Parse(entry); err == nil && u.Host != "" {
				p.hosts[strings.ToLower(u.Host)] = true
			}
		default:
			p.hosts[strings.ToLower(entry)] = true
		}
	}
	return p
}

func (p originPolicy) allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.any {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	return host == strings.ToLower(r.Host) || p.hosts[host]
}
