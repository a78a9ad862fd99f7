// Package translate sends category text fields to an OpenAI-compatible
// chat-completion API and reads the translated fields back.
//
// One request carries one category: the system message holds the
// translation instruction, the user message holds the fields as a JSON
// object, and the reply is expected to be a JSON object with the same keys.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Fields maps a column name to its text.
type Fields map[string]string

// Keys returns the field names in sorted order, matching the order in
// which encoding/json writes them.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Translator translates one set of fields.
type Translator interface {
	Translate(ctx context.Context, fields Fields) (Fields, error)
}

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration of the chat-completion service.
type Provider struct {
	// Name is the display name used in logs and errors.
	Name string
	// BaseURL is the API base URL; "/chat/completions" is appended.
	BaseURL string
	// APIKey is the bearer token.
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultProvider returns the OpenAI provider definition.
func DefaultProvider() Provider {
	return Provider{
		Name:    "OpenAI",
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o",
		Timeout: 120 * time.Second,
	}
}

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// DefaultSystemPrompt is the instruction sent with every category.
const DefaultSystemPrompt = `You are a translation assistant for a {{storeType}} store. ` +
	`Translate the following JSON from {{sourceLang}} to {{targetLang}}. ` +
	`Preserve JSON structure; translate only values; leave empty fields empty.`

// DefaultTemperature keeps the model close to a literal translation.
const DefaultTemperature = 0.2

// Options controls the wording of the request.
type Options struct {
	// StoreType describes the shop ("sports equipment and accessories").
	StoreType string
	// SourceLang and TargetLang are human-readable language names.
	SourceLang string
	TargetLang string
	// Temperature is the sampling temperature.
	Temperature float64
	// SystemPrompt overrides DefaultSystemPrompt. The placeholders
	// {{storeType}}, {{sourceLang}} and {{targetLang}} are substituted.
	SystemPrompt string
}

// ResolvedPrompt returns the system prompt with placeholders replaced.
func (o Options) ResolvedPrompt() string {
	prompt := o.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	return strings.NewReplacer(
		"{{storeType}}", o.StoreType,
		"{{sourceLang}}", o.SourceLang,
		"{{targetLang}}", o.TargetLang,
	).Replace(prompt)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Messages builds the two-message conversation for a set of fields.
func Messages(opts Options, fields Fields) ([]Message, error) {
	user, err := EncodeFields(fields)
	if err != nil {
		return nil, err
	}
	return []Message{
		{Role: "system", Content: opts.ResolvedPrompt()},
		{Role: "user", Content: user},
	}, nil
}

// EncodeFields renders fields as compact JSON with HTML and non-ASCII text
// left unescaped, so the model sees the markup exactly as stored.
func EncodeFields(fields Fields) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return "", fmt.Errorf("encoding fields: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
