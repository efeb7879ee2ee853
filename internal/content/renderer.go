// Package content renders chat messages and conversation lists for the
// terminal console. Fenced code blocks in messages are highlighted with Chroma;
// prose is wrapped to the available width with Lipgloss.
package content

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/warpspeed/portal/internal/interfaces"
)

// Renderer implements interfaces.ContentRenderer
type Renderer struct {
	highlighter *SyntaxHighlighter
	styles      Styles
	cache       *renderCache
}

// Styles used by the renderer
type Styles struct {
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Text           lipgloss.Style
	Code           lipgloss.Style
	Citation       lipgloss.Style
	Selected       lipgloss.Style
	Muted          lipgloss.Style
}

// DefaultStyles returns the default terminal palette
func DefaultStyles() Styles {
	return Styles{
		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#98C379")),
		Text:           lipgloss.NewStyle(),
		Code:           lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("#5C6370")).PaddingLeft(1),
		Citation:       lipgloss.NewStyle().Foreground(lipgloss.Color("#ABB2BF")).Italic(true),
		Selected:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B")),
		Muted:          lipgloss.NewStyle().Foreground(lipgloss.Color("#5C6370")),
	}
}

// NewRenderer creates a renderer with ANSI 256-color highlighting
func NewRenderer() *Renderer {
	return NewRendererWithHighlighter(NewSyntaxHighlighter("monokai", "terminal256"))
}

// NewRendererWithHighlighter creates a renderer around a specific highlighter
func NewRendererWithHighlighter(highlighter *SyntaxHighlighter) *Renderer {
	return &Renderer{
		highlighter: highlighter,
		styles:      DefaultStyles(),
		cache:       newRenderCache(500),
	}
}

// RenderMessage renders one chat turn with its role label and citations
func (r *Renderer) RenderMessage(msg interfaces.ChatMessage, width int) (string, error) {
	if width <= 0 {
		width = 80
	}

	key := fmt.Sprintf("%s:%d:%d", msg.ID, width, len(msg.Message))
	if msg.ID != "" {
		if cached, ok := r.cache.get(key); ok {
			return cached, nil
		}
	}

	var b strings.Builder
	if msg.Role == "assistant" {
		b.WriteString(r.styles.AssistantLabel.Render("Assistant"))
	} else {
		b.WriteString(r.styles.UserLabel.Render("You"))
	}
	b.WriteString("\n")

	var firstErr error
	for i, segment := range ParseSegments(msg.Message) {
		if i > 0 {
			b.WriteString("\n")
		}
		if segment.Code {
			highlighted, err := r.highlighter.Highlight(segment.Text, segment.Language)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to highlight %s block: %w", segment.Language, err)
			}
			b.WriteString(r.styles.Code.Render(strings.TrimRight(highlighted, "\n")))
		} else {
			b.WriteString(r.styles.Text.Width(width).Render(segment.Text))
		}
		b.WriteString("\n")
	}

	for i, citation := range msg.Citations {
		label := citation.Title
		if label == "" {
			label = citation.URL
		}
		b.WriteString(r.styles.Citation.Render(fmt.Sprintf("[%d] %s", i+1, label)))
		b.WriteString("\n")
	}

	out := b.String()
	if msg.ID != "" && firstErr == nil {
		r.cache.put(key, out)
	}
	return out, firstErr
}

// RenderConversationList renders conversation titles with a selection marker
func (r *Renderer) RenderConversationList(conversations []interfaces.Conversation, selected int) string {
	if len(conversations) == 0 {
		return r.styles.Muted.Render("No conversations yet")
	}

	var b strings.Builder
	for i, conv := range conversations {
		title := conv.Title
		if title == "" {
			title = "Untitled conversation"
		}
		line := fmt.Sprintf("  %s", title)
		if conv.MessageCount > 0 {
			line += r.styles.Muted.Render(fmt.Sprintf(" (%d)", conv.MessageCount))
		}
		if i == selected {
			line = r.styles.Selected.Render("> " + title)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderCache keeps rendered messages; it is dropped wholesale when full
type renderCache struct {
	mutex   sync.RWMutex
	entries map[string]string
	maxSize int
}

func newRenderCache(maxSize int) *renderCache {
	return &renderCache{entries: make(map[string]string), maxSize: maxSize}
}

func (c *renderCache) get(key string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *renderCache) put(key, value string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[string]string)
	}
	c.entries[key] = value
}

var _ interfaces.ContentRenderer = (*Renderer)(nil)
