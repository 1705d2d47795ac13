package gateway

import "strings"

const diffHeader = "diff --git "

// splitDiff breaks a unified diff into chunks of at most maxSize characters,
// preferring to break at file boundaries so each chunk stays parseable on its
// own. Oversized single-file sections fall back to hard splitting.
func splitDiff(diff string, maxSize int) []string {
	if maxSize <= 0 || len(diff) <= maxSize {
		return []string{diff}
	}

	var sections []string
	rest := diff
	for {
		idx := strings.Index(rest[1:], "\n"+diffHeader)
		if idx < 0 {
			sections = append(sections, rest)
			break
		}
		sections = append(sections, rest[:idx+2])
		rest = rest[idx+2:]
	}

	var chunks []string
	var current strings.Builder
	for _, section := range sections {
		if current.Len() > 0 && current.Len()+len(section) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(section)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	// Hard-split any chunk that is still too large.
	var out []string
	for _, chunk := range chunks {
		for len(chunk) > maxSize {
			out = append(out, chunk[:maxSize])
			chunk = chunk[maxSize:]
		}
		if chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}
