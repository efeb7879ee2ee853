package content

import "strings"

// Segment is a run of prose or a fenced code block within a chat message
type Segment struct {
	Code     bool
	Language string
	Text     string
}

// ParseSegments splits markdown-ish text on ``` fences. An unterminated fence
// runs to the end of the message.
func ParseSegments(text string) []Segment {
	var segments []Segment
	var current strings.Builder
	inCode := false
	language := ""

	flush := func() {
		body := current.String()
		current.Reset()
		if inCode {
			segments = append(segments, Segment{Code: true, Language: language, Text: strings.TrimSuffix(body, "\n")})
			return
		}
		if strings.TrimSpace(body) != "" {
			segments = append(segments, Segment{Text: strings.Trim(body, "\n")})
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			flush()
			if inCode {
				inCode = false
				language = ""
			} else {
				inCode = true
				language = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			}
			continue
		}
		current.WriteString(line)
	}
	flush()

	return segments
}
