package bilibili

import "strings"

// VideoPageURL is the canonical page URL prefix for a bare video id.
const VideoPageURL = "https://www.bilibili.com/video/"

// NormalizeURL turns user input into a page URL. Anything with an http(s) scheme is
// returned unchanged; a bilibili.com or b23.tv address without a scheme gets https://; anything
// else is treated as a bare video id such as BV1xx411c7mD.
func NormalizeURL(input string) string {
	input = strings.TrimSpace(input)

	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://") {
		return input
	}

	if isSiteHost(lower) {
		return "https://" + input
	}

	return VideoPageURL + strings.Trim(input, "/")
}

// isSiteHost reports whether the scheme-less input starts with a bilibili host.
func isSiteHost(input string) bool {
	host, _, _ := strings.Cut(input, "/")
	host, _, _ = strings.Cut(host, "?")

	return host == "bilibili.com" || strings.HasSuffix(host, ".bilibili.com") || host == "b23.tv"
}
