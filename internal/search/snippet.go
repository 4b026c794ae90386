package search

import "strings"

// truncateSnippet bounds s to roughly maxLen characters, cutting at a
// word boundary and never inside an HTML markup tag. An ellipsis is
// appended when anything was cut. Snippets may carry highlight tags
// like <mark>, so a cut position inside angle brackets is pushed back
// to before the tag opened.
func truncateSnippet(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}

	cut := maxLen
	// Back out of a tag if the cut landed inside one.
	if open := strings.LastIndexByte(s[:cut], '<'); open >= 0 {
		if strings.IndexByte(s[open:cut], '>') < 0 {
			cut = open
		}
	}

	// Back up to a word boundary.
	if idx := strings.LastIndexByte(s[:cut], ' '); idx > 0 {
		cut = idx
	}

	truncated := strings.TrimRight(s[:cut], " ")
	if truncated == "" {
		truncated = s[:maxLen]
	}
	return closeOpenTags(truncated) + "…"
}

// closeOpenTags appends closing tags for highlight markup left open by
// truncation, so callers can render the snippet as-is.
func closeOpenTags(s string) string {
	var open []string
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			continue
		}
		end := strings.IndexByte(s[i:], '>')
		if end < 0 {
			break
		}
		tag := s[i+1 : i+end]
		if strings.HasPrefix(tag, "/") {
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		} else if !strings.HasSuffix(tag, "/") {
			name := tag
			if sp := strings.IndexByte(name, ' '); sp >= 0 {
				name = name[:sp]
			}
			open = append(open, name)
		}
		i += end
	}

	for i := len(open) - 1; i >= 0; i-- {
		s += "</" + open[i] + ">"
	}
	return s
}
