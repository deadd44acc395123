package sanitize

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/arborsec/arbor/internal/taint"
)

var (
	defaultSchemes = []string{"http", "https"}
	defaultPorts   = []int{80, 443, 8080, 8443}
)

// metadataHosts are cloud metadata endpoints, rejected by exact hostname
// match before any resolution happens.
var metadataHosts = map[string]bool{
	"169.254.169.254":          true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
	"100.100.100.200":          true,
	"fd00:ec2::254":            true,
}

// SSRFSanitizer validates an outbound URL. The hostname is resolved and the
// resolved addresses are checked, not just the textual host: a hostname that
// looks public but resolves to a private address (DNS rebinding) must be
// rejected, so the resolve-then-check ordering is mandatory. Resolution
// honors the caller's context deadline.
type SSRFSanitizer struct {
	// Resolver overrides DNS resolution in tests. Nil uses net.DefaultResolver.
	Resolver interface {
		LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	}
}

func (s *SSRFSanitizer) Kind() Kind     { return KindSSRF }
func (s *SSRFSanitizer) Bit() taint.Bit { return taint.SSRF }

func (s *SSRFSanitizer) Sanitize(ctx context.Context, value string, t taint.Taint, opts Options) (Result, error) {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" {
		return Result{}, errf(ReasonInvalidURL, "cannot parse %q as a URL", value)
	}

	schemes := opts.AllowedSchemes
	if len(schemes) == 0 {
		schemes = defaultSchemes
	}
	if !containsString(schemes, u.Scheme) {
		return Result{}, errf(ReasonBlockedScheme, "scheme %q is not allowed", u.Scheme)
	}

	port, err := effectivePort(u)
	if err != nil {
		return Result{}, err
	}
	ports := opts.AllowedPorts
	if len(ports) == 0 {
		ports = defaultPorts
	}
	if !containsInt(ports, port) {
		return Result{}, errf(ReasonBlockedPort, "port %d is not allowed", port)
	}

	host := strings.ToLower(u.Hostname())
	if metadataHosts[host] {
		return Result{}, errf(ReasonMetadataEndpoint, "%s", host)
	}

	ips, err := s.resolve(ctx, host)
	if err != nil {
		return Result{}, errf(ReasonDNSFailed, "cannot resolve %q: %v", host, err)
	}

	if !opts.AllowPrivate {
		// v4 first, then v6, so the error names the address a v4-only client
		// would have connected to.
		for _, ip := range orderedV4First(ips) {
			if isForbiddenIP(ip) {
				return Result{}, errf(ReasonPrivateIP, "%s resolves to %s", host, ip)
			}
		}
	}

	return Result{Value: u.String(), Taint: t.With(taint.SSRF, taint.Verified)}, nil
}

func (s *SSRFSanitizer) Detect(value string) Detection {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil || u.Host == "" {
		return Detection{Patterns: []string{"unparseable_url"}}
	}
	var patterns []string
	host := strings.ToLower(u.Hostname())
	if metadataHosts[host] {
		patterns = append(patterns, "metadata_endpoint")
	}
	if ip := net.ParseIP(host); ip != nil && isForbiddenIP(ip) {
		patterns = append(patterns, "private_ip_literal")
	}
	if !containsString(defaultSchemes, u.Scheme) {
		patterns = append(patterns, "unusual_scheme")
	}
	if len(patterns) > 0 {
		return Detection{Patterns: patterns}
	}
	return Detection{Safe: true, Score: 0.8}
}

func (s *SSRFSanitizer) resolve(ctx context.Context, host string) ([]net.IP, error) {
	// IP literals skip DNS entirely but still get the address checks.
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	resolver := s.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

func effectivePort(u *url.URL) (int, error) {
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return 0, errf(ReasonInvalidURL, "invalid port %q", p)
		}
		return port, nil
	}
	switch u.Scheme {
	case "http":
		return 80, nil
	case "https":
		return 443, nil
	default:
		return 0, errf(ReasonBlockedPort, "no default port for scheme %q", u.Scheme)
	}
}

func isForbiddenIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified() ||
		ip.IsInterfaceLocalMulticast()
}

func orderedV4First(ips []net.IP) []net.IP {
	ordered := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if ip.To4() != nil {
			ordered = append(ordered, ip)
		}
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			ordered = append(ordered, ip)
		}
	}
	return ordered
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, n := range list {
		if n == v {
			return true
		}
	}
	return false
}
