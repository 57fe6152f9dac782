package regex

import "testing"

func TestExtensionPattern(t *testing.T) {
	re := ExtensionPattern([]string{"webm", ".MP4", " jpg "})

	matches := []string{"/videos/a.webm", "/videos/A.WEBM", "/b.mp4", "/c.Jpg"}
	for _, p := range matches {
		if !re.MatchString(p) {
			t.Errorf("Expected %q to match", p)
		}
	}

	misses := []string{"/a.webm.txt", "/mp4", "/a.jpeg", "/a.webmx"}
	for _, p := range misses {
		if re.MatchString(p) {
			t.Errorf("Expected %q not to match", p)
		}
	}
}

func TestExtensionPattern_Empty(t *testing.T) {
	if ExtensionPattern(nil) != nil {
		t.Error("Expected nil pattern for empty list")
	}
	if ExtensionPattern([]string{"", "."}) != nil {
		t.Error("Expected nil pattern for blank extensions")
	}
}

func TestCombinePatterns(t *testing.T) {
	re := CombinePatterns([]string{"^/api", "\\.json$"})
	if !re.MatchString("/api/x") || !re.MatchString("/data.json") {
		t.Error("Expected combined pattern to match either alternative")
	}
	if re.MatchString("/index.html") {
		t.Error("Unexpected match")
	}
}
