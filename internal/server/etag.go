package server

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// etagFor returns a weak validator for a response body.
func etagFor(body []byte) string {
	return `W/"` + strconv.FormatUint(xxhash.Sum64(body), 16) + `"`
}

// etagMatches implements If-None-Match comparison, including "*" and lists.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimSpace(candidate)
		if c == "*" || strings.TrimPrefix(c, "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
