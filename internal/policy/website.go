package policy

import (
	"net"
	"regexp"
	"strconv"
	"strings"
)

var (
	schemePrefix = regexp.MustCompile(`^(https?://)?(www\.)?`)

	domainPattern    = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)*[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z]{2,})(:\d+)?$`)
	localhostPattern = regexp.MustCompile(`^localhost(:\d+)?$`)
	ipv4Pattern      = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}(:\d+)?$`)
)

// NormalizeWebsite reduces user input to a bare lowercase host[:port].
// "https://www.YouTube.com/watch?v=1" becomes "youtube.com".
func NormalizeWebsite(input string) string {
	w := strings.ToLower(strings.TrimSpace(input))
	w = schemePrefix.ReplaceAllString(w, "")
	if i := strings.IndexByte(w, '/'); i >= 0 {
		w = w[:i]
	}
	return w
}

// ValidWebsite reports whether a normalized website is a hostname,
// localhost or an IPv4 address, each with an optional port.
func ValidWebsite(website string) bool {
	switch {
	case localhostPattern.MatchString(website):
		return validPort(website)
	case ipv4Pattern.MatchString(website):
		host, _ := SplitHostPort(website)
		return net.ParseIP(host) != nil && validPort(website)
	case domainPattern.MatchString(website):
		return validPort(website)
	}
	return false
}

// SplitHostPort separates an optional ":port" suffix. Port is "" when absent.
func SplitHostPort(website string) (host, port string) {
	i := strings.LastIndexByte(website, ':')
	if i < 0 {
		return website, ""
	}
	return website[:i], website[i+1:]
}

// IsIPHost reports whether the website's host part is an IP literal.
func IsIPHost(website string) bool {
	host, _ := SplitHostPort(website)
	return net.ParseIP(host) != nil
}

func validPort(website string) bool {
	_, port := SplitHostPort(website)
	if port == "" {
		return true
	}
	n, err := strconv.Atoi(port)
	return err == nil && n > 0 && n <= 65535
}
