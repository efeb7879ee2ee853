package content

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
)

const defaultTheme = "github"

// SyntaxHighlighter colors fenced code blocks found in chat replies
type SyntaxHighlighter struct {
	formatter chroma.Formatter
	style     *chroma.Style
	theme     string
}

// NewSyntaxHighlighter builds a highlighter. An unknown formatter falls back
// to plain text and an unknown theme to github.
func NewSyntaxHighlighter(themeName, formatterName string) *SyntaxHighlighter {
	sh := &SyntaxHighlighter{formatter: formatters.Get(formatterName)}
	if sh.formatter == nil {
		sh.formatter = formatters.Fallback
	}
	if err := sh.SetTheme(themeName); err != nil {
		sh.style, sh.theme = styles.Get(defaultTheme), defaultTheme
	}
	return sh
}

// fenceLanguage reduces a fence info string such as "go title=main.go" or
// "{.python}" to a lexer name
func fenceLanguage(info string) string {
	fields := strings.Fields(info)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(fields[0], "{}."))
}

func lexerFor(language, code string) chroma.Lexer {
	lexer := lexers.Get(fenceLanguage(language))
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		return lexers.Fallback
	}
	return lexer
}

// Highlight colors code for the given fence language. On failure the code
// comes back unchanged together with the error.
func (sh *SyntaxHighlighter) Highlight(code, language string) (string, error) {
	tokens, err := chroma.Coalesce(lexerFor(language, code)).Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var out strings.Builder
	if err := sh.formatter.Format(&out, sh.style, tokens); err != nil {
		return code, err
	}
	return out.String(), nil
}

// SetTheme switches the chroma style. Names chroma does not know are rejected.
func (sh *SyntaxHighlighter) SetTheme(themeName string) error {
	style, ok := styles.Registry[strings.ToLower(themeName)]
	if !ok {
		return fmt.Errorf("unknown highlight theme %q", themeName)
	}
	sh.style, sh.theme = style, strings.ToLower(themeName)
	return nil
}

// Theme returns the active theme name
func (sh *SyntaxHighlighter) Theme() string {
	return sh.theme
}
