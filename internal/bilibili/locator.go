package bilibili

import (
	"encoding/json"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/italolelis/bilidown/internal/media"
)

// The play info is a JSON blob inside a script tag and the document around it is not JSON,
// so the three fields are matched directly. [^}]* keeps the baseUrl match inside the first
// object of each array.
var (
	titlePattern = regexp.MustCompile(`<title[^>]*>([^<]+)_哔哩哔哩_bilibili\s*</title>`)
	videoPattern = regexp.MustCompile(`"video"\s*:\s*\[\s*\{[^}]*"baseUrl"\s*:\s*"([^"]+)"`)
	audioPattern = regexp.MustCompile(`"audio"\s*:\s*\[\s*\{[^}]*"baseUrl"\s*:\s*"([^"]+)"`)
)

// Locate extracts the title and the first video and audio stream URLs from a page.
// It fails with *media.ExtractionError naming the first field that is missing.
func Locate(page string) (media.Reference, error) {
	title := strings.TrimSpace(html.UnescapeString(firstGroup(titlePattern, page)))
	if title == "" {
		return media.Reference{}, &media.ExtractionError{Field: "title"}
	}

	videoURL := firstGroup(videoPattern, page)
	if videoURL == "" {
		return media.Reference{}, &media.ExtractionError{Field: string(media.RoleVideo)}
	}

	audioURL := firstGroup(audioPattern, page)
	if audioURL == "" {
		return media.Reference{}, &media.ExtractionError{Field: string(media.RoleAudio)}
	}

	return media.Reference{
		Title:    title,
		VideoURL: unescapeJSON(videoURL),
		AudioURL: unescapeJSON(audioURL),
	}, nil
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}

	return strings.TrimSpace(m[1])
}

// unescapeJSON decodes JSON string escapes (\uXXXX, \/) in a captured value.
func unescapeJSON(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}

	return out
}
