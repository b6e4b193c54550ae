// Package privacy scrubs credentials and hosts from endpoint URLs before they
// reach logs, telemetry or the control API.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// endpointPattern finds URLs of the transports LensNet talks to.
var endpointPattern = regexp.MustCompile(`\b(?:https?|mqtts?|tcp|ssl|wss?|[a-z]+)://\S+`)

// ScrubMessage replaces every URL in message with its anonymized form.
func ScrubMessage(message string) string {
	return endpointPattern.ReplaceAllStringFunc(message, AnonymizeURL)
}

// AnonymizeURL hashes a URL into a stable token that keeps the scheme, the
// kind of host and the path shape but nothing identifying.
func AnonymizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		sum := sha256.Sum256([]byte(raw))
		return fmt.Sprintf("url-hash-%x", sum[:8])
	}

	parts := []string{u.Scheme}
	if host := u.Hostname(); host != "" {
		parts = append(parts, hostKind(host))
	}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		parts = append(parts, pathShape(p))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s-%x", u.Scheme, sum[:12])
}

// RedactEndpoint drops credentials, path and query from an endpoint URL so it
// can be shown to a user, for example "tcp://broker.local:1883". Notification
// URLs carry tokens in user info and path, so only scheme and host remain.
func RedactEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if i := strings.Index(raw, "://"); i > 0 {
			return raw[:i+3] + "redacted"
		}
		return "redacted"
	}
	return u.Scheme + "://" + u.Host
}

func hostKind(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		switch {
		case addr.IsLoopback():
			return "localhost"
		case addr.IsPrivate(), addr.IsLinkLocalUnicast(), addr.IsMulticast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}

func pathShape(p string) string {
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch {
		case s == "":
			continue
		case isNumeric(s):
			out = append(out, "numeric")
		default:
			sum := sha256.Sum256([]byte(s))
			out = append(out, fmt.Sprintf("seg-%x", sum[:4]))
		}
	}
	return strings.Join(out, "/")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// scrubbedError reports a scrubbed message while keeping the original error
// reachable for errors.Is and errors.As.
type scrubbedError struct {
	err error
	msg string
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }

// ScrubError returns err with every URL in its message anonymized. A nil
// error stays nil.
func ScrubError(err error) error {
	if err == nil {
		return nil
	}
	return &scrubbedError{err: err, msg: ScrubMessage(err.Error())}
}
