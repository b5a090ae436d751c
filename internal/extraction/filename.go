package extraction

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"bauchermatch/internal/core"
)

var dispositionFilenameRE = regexp.MustCompile(`filename="(.+)"`)

// FilenameFromDisposition extracts the suggested filename from a
// Content-Disposition value. It returns "" when none is present.
func FilenameFromDisposition(cd string) string {
	if cd == "" {
		return ""
	}
	if m := dispositionFilenameRE.FindStringSubmatch(cd); m != nil {
		return sanitize(m[1])
	}
	if _, params, err := mime.ParseMediaType(cd); err == nil {
		return sanitize(params["filename"])
	}
	return ""
}

// FallbackFilename derives the output name from the uploaded file: extension
// stripped, spaces replaced with underscores, ".csv" appended (".json" for
// the full download endpoint).
func FallbackFilename(original string, v core.Variant) string {
	base := filepath.Base(original)
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.ReplaceAll(base, " ", "_")
	if base == "" || base == "." {
		base = "statement"
	}
	if v == core.VariantFull {
		return base + ".json"
	}
	return base + ".csv"
}

// sanitize keeps only the final path element of name.
func sanitize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
