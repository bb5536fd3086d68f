package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// KeywordKey returns a stable hex key for a keyword. Keywords that normalize
// to the same text share a key.
func KeywordKey(keyword string) string {
	sum := sha256.Sum256([]byte(NormalizeKeyword(keyword)))
	return hex.EncodeToString(sum[:])
}

// ResolveURL makes ref absolute. Protocol-relative references get https;
// relative ones are resolved against base when it is set. Unparseable
// references are returned unchanged.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "//"):
		return "https:" + ref
	case base == nil:
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
