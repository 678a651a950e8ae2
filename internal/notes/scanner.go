package notes

import (
	"regexp"
	"strings"
)

// LinkRef is one wiki-link reference discovered by a scan.
type LinkRef struct {
	ToSlug string
	Alias  string
	Raw    string
}

// BlockRef is one typed block discovered by a scan. Ordinal counts across all
// block kinds in document order.
type BlockRef struct {
	Type    string
	Data    map[string]string
	Ordinal int
}

// ScanResult holds the derived references for one note's markdown.
type ScanResult struct {
	Links  []LinkRef
	Blocks []BlockRef
}

var wikilinkPattern = regexp.MustCompile(`\[\[(.*?)\]\]`)

// blockKeywords are the fence info strings the scanner treats as typed
// blocks. The set is open elsewhere in the product; the scanner only needs
// the keyword, never the kind's internal shape.
var blockKeywords = map[string]struct{}{
	"chord":     {},
	"prog":      {},
	"tab":       {},
	"metronome": {},
	"setlist":   {},
}

// Scan derives link and block references from raw markdown. It is a pure
// function: identical input always yields identical output, which the graph
// synchronizer relies on when it replaces stored state wholesale.
func Scan(markdown string) ScanResult {
	return ScanResult{
		Links:  scanLinks(markdown),
		Blocks: scanBlocks(markdown),
	}
}

// scanLinks extracts [[target]] and [[target|alias]] references. Targets are
// normalized through Slugify; duplicates of the same target keep the first
// occurrence's alias and raw text, in document order.
func scanLinks(markdown string) []LinkRef {
	matches := wikilinkPattern.FindAllStringSubmatch(markdown, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []LinkRef
	for _, m := range matches {
		inner := m[1]
		target := inner
		alias := ""
		if i := strings.Index(inner, "|"); i >= 0 {
			target = inner[:i]
			alias = strings.TrimSpace(inner[i+1:])
		}
		slug := Slugify(strings.TrimSpace(target))
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, LinkRef{ToSlug: slug, Alias: alias, Raw: m[0]})
	}
	return out
}

// scanBlocks extracts fenced regions whose opening fence carries a known
// block keyword and parses each body as flat key/value pairs.
func scanBlocks(markdown string) []BlockRef {
	lines := strings.Split(markdown, "\n")
	var out []BlockRef
	ordinal := 0

	for i := 0; i < len(lines); i++ {
		keyword, ok := fenceKeyword(lines[i])
		if !ok {
			continue
		}
		body, next := collectFenceBody(lines, i+1)
		out = append(out, BlockRef{
			Type:    keyword,
			Data:    parseBlockBody(body),
			Ordinal: ordinal,
		})
		ordinal++
		i = next
	}
	return out
}

// fenceKeyword reports the block keyword when the line opens a typed fence.
func fenceKeyword(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	info := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
	if info == "" {
		return "", false
	}
	// Only the first info-string token matters.
	if i := strings.IndexAny(info, " \t"); i >= 0 {
		info = info[:i]
	}
	_, known := blockKeywords[info]
	return info, known
}

// collectFenceBody gathers lines until the closing fence (or end of input)
// and returns the index of the closing fence line.
func collectFenceBody(lines []string, start int) ([]string, int) {
	for i := start; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			return lines[start:i], i
		}
	}
	return lines[start:], len(lines)
}

// parseBlockBody parses "key: value" lines. Blank lines and lines starting
// with # are skipped; lines without a colon are ignored; both sides are
// trimmed; a repeated key overwrites the earlier value. Values stay strings.
func parseBlockBody(lines []string) map[string]string {
	data := make(map[string]string)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		i := strings.Index(trimmed, ":")
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(trimmed[:i])
		value := strings.TrimSpace(trimmed[i+1:])
		if key == "" {
			continue
		}
		data[key] = value
	}
	return data
}
