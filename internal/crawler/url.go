package crawler

import (
	"net/url"
	"strings"
)

// NormalizeURL resolves raw against base and returns a canonical absolute form.
// The fragment is dropped, scheme and host are lower-cased, and a host without
// a path gets "/". A '%' that does not start an escape is re-encoded as "%25"
// so the reference still resolves. Input that cannot be parsed even then is
// returned trimmed with its fragment cut; later admission stages or the fetch
// reject it.
func NormalizeURL(raw, base string) string {
	raw = strings.TrimSpace(raw)
	ref, err := url.Parse(raw)
	if err != nil {
		ref, err = url.Parse(escapeStrayPercents(raw))
		if err != nil {
			return cutFragment(raw)
		}
	}
	resolved := ref
	if baseURL, err := url.Parse(strings.TrimSpace(base)); err == nil {
		resolved = baseURL.ResolveReference(ref)
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	if resolved.Host != "" && resolved.Path == "" && resolved.Opaque == "" {
		resolved.Path = "/"
	}
	return resolved.String()
}

// escapeStrayPercents encodes every '%' not followed by two hex digits.
func escapeStrayPercents(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + 8)
	for i := 0; i < len(raw); i++ {
		if raw[i] == '%' && (i+2 >= len(raw) || !isHex(raw[i+1]) || !isHex(raw[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func cutFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}
