package anubis

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	crerr "github.com/cockroachdb/errors"
)

// introspectEndpoint joins path onto baseURL. An absolute path replaces the
// base entirely.
func introspectEndpoint(baseURL, path string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return baseURL
	case strings.Contains(path, "://"):
		return path
	}
	joined, err := url.JoinPath(baseURL, path)
	if err != nil {
		return baseURL + "/" + strings.TrimLeft(path, "/")
	}
	return joined
}

// principalKey keys the principal cache so raw tokens never sit in memory as
// map keys.
func principalKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// tripsBreaker counts only transport and 5xx failures against the breaker.
// Rejected tokens are answers, not outages.
func tripsBreaker(err error) bool {
	return crerr.Is(err, errAnubisTransient)
}
