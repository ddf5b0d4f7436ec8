package openrouter

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const defaultBaseURL = "https://openrouter.ai"

var defaultAllowedHosts = []string{"openrouter.ai", "api.openrouter.ai"}

// ValidateBaseURL rejects endpoints an API key must not be sent to. The
// host must be in allowedHosts (the OpenRouter hosts when empty) and the
// scheme must be https, except for loopback hosts.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	_, err := parseBaseURL(baseURL, allowedHosts)
	return err
}

// parseBaseURL returns the validated endpoint without a trailing slash.
func parseBaseURL(raw string, allowedHosts []string) (string, error) {
	raw = trimBaseURL(raw)
	bad := func(reason string) error {
		return fmt.Errorf("invalid OPENROUTER_BASE_URL %q: %s", raw, reason)
	}

	u, err := url.Parse(raw)
	switch {
	case err != nil:
		return "", fmt.Errorf("invalid OPENROUTER_BASE_URL: %w", err)
	case !u.IsAbs() || u.Host == "":
		return "", bad("absolute URL with host is required")
	case u.User != nil:
		return "", bad("userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return "", bad("query and fragment are not allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", bad("host is required")
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "https" && (scheme != "http" || !isLoopback(host)) {
		return "", bad("https is required")
	}
	if !hostSet(allowedHosts).has(host) {
		return "", bad(fmt.Sprintf("host %q is not in OPENROUTER_ALLOWED_HOSTS", host))
	}
	return raw, nil
}

func trimBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = defaultBaseURL
	}
	return strings.TrimRight(raw, "/")
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

type hosts map[string]struct{}

func (h hosts) has(host string) bool {
	_, ok := h[host]
	return ok
}

// hostSet accepts bare hosts as well as URLs with scheme or port. Blank
// entries are ignored; an all-blank list falls back to the defaults.
func hostSet(list []string) hosts {
	out := hosts{}
	for _, h := range list {
		h = strings.ToLower(strings.TrimSpace(h))
		h = strings.TrimPrefix(strings.TrimPrefix(h, "http://"), "https://")
		h = strings.Trim(h, "/")
		if i := strings.IndexByte(h, ':'); i >= 0 {
			h = h[:i]
		}
		if h != "" {
			out[h] = struct{}{}
		}
	}
	if len(out) == 0 {
		for _, h := range defaultAllowedHosts {
			out[h] = struct{}{}
		}
	}
	return out
}
