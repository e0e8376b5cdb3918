package alarm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/weny945/home-pi/pkg/provider/llm"
)

// cheerTemplates back up the generator when the language model is
// unreachable at alarm creation time.
var cheerTemplates = map[string]string{
	"gentle":    "Good morning. Take your time, the day can wait a moment.",
	"energetic": "Rise and shine! Today is yours, let's get moving!",
	"":          "Time to wake up. Have a wonderful day!",
}

// CheerGenerator pre-generates the themed announcement line stored with an
// alarm, so firing never waits on a network call.
type CheerGenerator struct {
	client  llm.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewCheerGenerator builds a generator. client may be nil, in which case
// only templates are used.
func NewCheerGenerator(client llm.Client, timeout time.Duration, logger *slog.Logger) *CheerGenerator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CheerGenerator{client: client, timeout: timeout, logger: logger}
}

// Generate returns one short announcement line for the theme. Any model
// failure falls back to a fixed template; Generate never returns "".
func (g *CheerGenerator) Generate(ctx context.Context, theme, message string) string {
	if g.client == nil {
		return g.template(theme)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := "Write one short, warm wake-up line for a voice alarm. Tone: "
	if theme == "" {
		prompt += "friendly"
	} else {
		prompt += theme
	}
	prompt += "."
	if message != "" {
		prompt += " The alarm is about: " + message + "."
	}
	prompt += " Reply with the line only, no quotes."

	resp, err := g.client.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.9,
		MaxTokens:   60,
	})
	if err != nil {
		g.logger.Warn("cheerword generation failed, using template", "theme", theme, "error", err)
		return g.template(theme)
	}
	line := strings.TrimSpace(strings.Trim(strings.TrimSpace(resp.Content), `"`))
	if line == "" {
		return g.template(theme)
	}
	return line
}

func (g *CheerGenerator) template(theme string) string {
	if t, ok := cheerTemplates[theme]; ok {
		return t
	}
	return cheerTemplates[""]
}
