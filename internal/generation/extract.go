package generation

import "strings"

// Extractor tries one candidate location for an image URL.
type Extractor func(Payload) (string, bool)

// PathExtractor returns an Extractor reading a string at a gjson path.
func PathExtractor(path string) Extractor {
	return func(p Payload) (string, bool) {
		return p.String(path)
	}
}

// urlExtractor accepts only values that look like an addressable image.
func urlExtractor(path string) Extractor {
	return func(p Payload) (string, bool) {
		v, ok := p.String(path)
		if !ok || !looksLikeURL(v) {
			return "", false
		}
		return v, true
	}
}

// DefaultExtractors is the probe order used when none is configured.
var DefaultExtractors = []Extractor{
	PathExtractor("images.0.url"),
	PathExtractor("output.0.url"),
	PathExtractor("data.0.url"),
	PathExtractor("data.images.0.url"),
	PathExtractor("data.output.0.url"),
	PathExtractor("result.images.0.url"),
	PathExtractor("result.data.0.url"),
	PathExtractor("result.0.url"),
	PathExtractor("outputs.0.url"),
	PathExtractor("image.url"),
	PathExtractor("image_url"),
	urlExtractor("output"),
	urlExtractor("url"),
}

// ExtractURL returns the first match produced by extractors, in order.
func ExtractURL(p Payload, extractors []Extractor) (string, bool) {
	if len(p) == 0 {
		return "", false
	}
	for _, extract := range extractors {
		if v, ok := extract(p); ok {
			return v, true
		}
	}
	return "", false
}

func looksLikeURL(v string) bool {
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "data:image/")
}
