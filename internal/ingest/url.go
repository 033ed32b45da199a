package ingest

import (
	"net/url"
	"regexp"
	"strings"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".svg"}

// Hosts that serve images from extensionless paths, plus extension-before-query URLs.
var imageHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`imgur\.com`),
	regexp.MustCompile(`\.cloudinary\.com`),
	regexp.MustCompile(`images\.unsplash\.com`),
	regexp.MustCompile(`\.googleusercontent\.com`),
	regexp.MustCompile(`(?i)\.amazonaws\.com.*\.(jpg|jpeg|png|gif|webp|bmp|svg)`),
	regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp|svg)\?`),
}

// IsNone reports whether cell is the "no image" sentinel.
func IsNone(cell string) bool {
	return strings.EqualFold(strings.TrimSpace(cell), "none")
}

// IsImageReference reports whether raw looks like an image URL. It checks shape only;
// reachability is the prober's business.
func IsImageReference(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host == "" {
		return false
	}

	path := strings.ToLower(u.Path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, pattern := range imageHostPatterns {
		if pattern.MatchString(raw) {
			return true
		}
	}
	return strings.HasPrefix(raw, "data:image/")
}
