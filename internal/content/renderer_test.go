package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warpspeed/portal/internal/interfaces"
)

func TestParseSegments(t *testing.T) {
	text := "Here is code:\n```go\nfmt.Println(\"hi\")\n```\nDone."

	segments := ParseSegments(text)

	require.Len(t, segments, 3)
	assert.Equal(t, Segment{Text: "Here is code:"}, segments[0])
	assert.Equal(t, Segment{Code: true, Language: "go", Text: "fmt.Println(\"hi\")"}, segments[1])
	assert.Equal(t, Segment{Text: "Done."}, segments[2])
}

func TestParseSegments_UnterminatedFence(t *testing.T) {
	segments := ParseSegments("```\nline one\nline two")

	require.Len(t, segments, 1)
	assert.True(t, segments[0].Code)
	assert.Equal(t, "", segments[0].Language)
	assert.Equal(t, "line one\nline two", segments[0].Text)
}

func TestRenderMessage(t *testing.T) {
	renderer := NewRendererWithHighlighter(NewSyntaxHighlighter("github", "noop"))

	out, err := renderer.RenderMessage(interfaces.ChatMessage{
		ID:      "m1",
		Role:    "assistant",
		Message: "Try this:\n```python\nprint('ok')\n```",
		Citations: []interfaces.Citation{
			{Title: "Python docs", URL: "https://docs.python.org"},
		},
	}, 60)
	require.NoError(t, err)

	assert.Contains(t, out, "Assistant")
	assert.Contains(t, out, "Try this:")
	assert.Contains(t, out, "print('ok')")
	assert.Contains(t, out, "[1] Python docs")

	again, err := renderer.RenderMessage(interfaces.ChatMessage{ID: "m1", Role: "assistant", Message: "Try this:\n```python\nprint('ok')\n```"}, 60)
	require.NoError(t, err)
	assert.Equal(t, out, again, "cached render is reused")
}

func TestRenderMessage_WrapsProse(t *testing.T) {
	renderer := NewRendererWithHighlighter(NewSyntaxHighlighter("github", "noop"))

	out, err := renderer.RenderMessage(interfaces.ChatMessage{Role: "user", Message: strings.Repeat("word ", 40)}, 20)
	require.NoError(t, err)

	assert.Contains(t, out, "You")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(strings.TrimRight(line, " ")), 20)
	}
}

func TestRenderConversationList(t *testing.T) {
	renderer := NewRenderer()

	assert.Contains(t, renderer.RenderConversationList(nil, 0), "No conversations")

	out := renderer.RenderConversationList([]interfaces.Conversation{
		{ID: "a", Title: "First"},
		{ID: "b"},
	}, 1)
	assert.Contains(t, out, "First")
	assert.Contains(t, out, "> Untitled conversation")
}

func TestSyntaxHighlighter_SetTheme(t *testing.T) {
	highlighter := NewSyntaxHighlighter("github", "noop")

	require.NoError(t, highlighter.SetTheme("monokai"))
	assert.Equal(t, "monokai", highlighter.Theme())
	assert.Error(t, highlighter.SetTheme("no-such-theme"))

	code, err := highlighter.Highlight("x := 1", "go")
	require.NoError(t, err)
	assert.Equal(t, "x := 1", strings.TrimSpace(code))
}

func TestFenceLanguage(t *testing.T) {
	assert.Equal(t, "go", fenceLanguage("go title=main.go"))
	assert.Equal(t, "python", fenceLanguage("{.Python}"))
	assert.Equal(t, "", fenceLanguage("   "))
}

func TestNewSyntaxHighlighter_UnknownThemeFallsBack(t *testing.T) {
	highlighter := NewSyntaxHighlighter("no-such-theme", "no-such-formatter")
	assert.Equal(t, "github", highlighter.Theme())
}
