package yandex

import (
	"fmt"
	"net/url"
	"strings"
)

// RewriteQueryURL embeds a search query into a maps URL's text parameter,
// preserving the rest of the current view state (center, zoom).
func RewriteQueryURL(current, query string) (string, error) {
	u, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("yandex: parse url %q: %w", current, err)
	}
	q := u.Query()
	q.Set("text", query)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func trimLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
