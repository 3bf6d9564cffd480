package fortune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"eto-fortune-pipeline/config"
	"eto-fortune-pipeline/retry"
	"eto-fortune-pipeline/types"
)

const systemPrompt = `You are 'Seimei', a Japanese fortune teller (占い師) with deep knowledge of the Eto (干支) zodiac cycle.
You write fortune scripts for vertical YouTube videos in JAPANESE.
The tone is: mystical, warm, positive, and specific to the animal sign.

CRITICAL RULES:
1. Write in natural spoken Japanese suitable for narration.
2. Do NOT mention concrete dates in the narration (it must stay evergreen).
3. Respond with ONLY a raw JSON object (no markdown, no explanation).

The JSON must have exactly these fields:
- "title": a short catchy Japanese title for the video
- "narration": the full narration text (love, work, money, and a lucky item)
- "mood": one of "zen" | "sakura" | "mystical" | "energetic" matching the fortune's overall tone`

// Generator produces fortune content via an OpenRouter-compatible
// chat-completions endpoint. It holds a primary and an optional backup
// credential; on any service failure with the primary it makes one pass
// with the backup before giving up.
type Generator struct {
	cfg        *config.Config
	httpClient *http.Client
	apiKeys    []string
}

// New creates a Generator reading OPENROUTER_API_KEY and
// OPENROUTER_API_KEY_BACKUP from the environment.
func New(cfg *config.Config) (*Generator, error) {
	var keys []string
	if k := os.Getenv("OPENROUTER_API_KEY"); k != "" {
		keys = append(keys, k)
	}
	if k := os.Getenv("OPENROUTER_API_KEY_BACKUP"); k != "" {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: OPENROUTER_API_KEY not set", types.ErrConfiguration)
	}
	return NewWithKeys(cfg, keys...), nil
}

// NewWithKeys creates a Generator with explicit credentials, primary first.
func NewWithKeys(cfg *config.Config, keys ...string) *Generator {
	return &Generator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Fortune.TimeoutSec) * time.Second},
		apiKeys:    keys,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// contentJSON is the raw JSON shape the model is asked to return.
type contentJSON struct {
	Title     string `json:"title"`
	Narration string `json:"narration"`
	Mood      string `json:"mood"`
}

// Generate produces validated fortune content for (animal, scope). It tries
// the primary credential, then the backup if one is configured, one pass
// each. If every credential fails the run fails; the pipeline never
// proceeds with placeholder text.
func (g *Generator) Generate(ctx context.Context, animal string, scope types.Scope, kind types.OutputKind) (*types.FortuneContent, error) {
	log.Printf("[fortune] Generating %s fortune for %s (%s)...", scope, animal, kind)

	var content *types.FortuneContent
	policy := retry.Policy{MaxAttempts: 1}
	err := retry.DoWithCredentials(ctx, policy, g.apiKeys, func(ctx context.Context, key string) error {
		if key != g.apiKeys[0] {
			log.Printf("[fortune] Primary credential failed, switching to backup key")
		}
		c, err := g.generateOnce(ctx, key, animal, scope, kind)
		if err != nil {
			return err
		}
		content = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: content generation unavailable: %v", types.ErrTransient, err)
	}

	log.Printf("[fortune] ✅ Content ready: %q (mood: %s, %d chars)",
		content.Title, content.MoodTag, len(content.NarrationText))
	return content, nil
}

func (g *Generator) generateOnce(ctx context.Context, apiKey, animal string, scope types.Scope, kind types.OutputKind) (*types.FortuneContent, error) {
	reqBody := chatRequest{
		Model: g.cfg.Fortune.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(animal, scope, kind, g.maxChars(kind))},
		},
		Temperature:    g.cfg.Fortune.Temperature,
		ResponseFormat: &respFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		g.cfg.Fortune.BaseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fortune request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fortune service returned %d: %s", resp.StatusCode, truncate(string(respBytes), 200))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("parse fortune response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("fortune service error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("fortune service returned no choices")
	}

	var raw contentJSON
	cleaned := cleanJSON(chatResp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("parse content JSON: %w (raw: %s)", err, truncate(cleaned, 200))
	}

	return validate(raw, g.maxChars(kind))
}

// validate enforces the content invariants: non-empty narration inside the
// kind's length envelope, and a parseable mood. An unknown mood falls back
// to the single default rather than aborting the run, since theming is
// secondary to content correctness.
func validate(raw contentJSON, maxChars int) (*types.FortuneContent, error) {
	narration := strings.TrimSpace(raw.Narration)
	if narration == "" {
		return nil, fmt.Errorf("generated narration is empty")
	}
	if len([]rune(narration)) > maxChars {
		return nil, fmt.Errorf("generated narration too long: %d chars (limit %d)", len([]rune(narration)), maxChars)
	}
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return nil, fmt.Errorf("generated title is empty")
	}

	mood, ok := types.ParseMood(raw.Mood)
	if !ok {
		log.Printf("[fortune] Unrecognized mood %q, falling back to %q", raw.Mood, types.DefaultMood)
		mood = types.DefaultMood
	}

	return &types.FortuneContent{
		Title:         title,
		NarrationText: narration,
		MoodTag:       mood,
	}, nil
}

func (g *Generator) maxChars(kind types.OutputKind) int {
	if kind == types.KindDetailed {
		return g.cfg.Fortune.DetailedMaxChars
	}
	return g.cfg.Fortune.ShortMaxChars
}

func buildUserPrompt(animal string, scope types.Scope, kind types.OutputKind, maxChars int) string {
	kanji := types.EtoKanji[animal]
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Write the %s fortune for the %s (%s年) zodiac sign.\n", scope, animal, kanji))
	switch kind {
	case types.KindDetailed:
		sb.WriteString("This is the detailed evening edition: cover love, career, money, health, and a remedy in depth.\n")
	default:
		sb.WriteString("This is the short morning edition: punchy, one or two sentences per topic.\n")
	}
	sb.WriteString(fmt.Sprintf("Keep the narration under %d characters.\n", maxChars))
	sb.WriteString("Respond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

// cleanJSON strips markdown fences if the model wraps its response in
// ```json ... ```.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
