package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrInvalidResponse is returned when the reply does not carry a JSON
// object of translated fields.
var ErrInvalidResponse = errors.New("invalid translation response")

// httpDoer is satisfied by *http.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the chat-completion Translator. It makes exactly one HTTP
// request per Translate call; there are no retries.
type Client struct {
	prov Provider
	opts Options
	http httpDoer
}

var _ Translator = (*Client)(nil)

// NewClient builds a client for the provider.
func NewClient(prov Provider, opts Options) *Client {
	return &Client{
		prov: prov,
		opts: opts,
		http: makeHTTPClient(prov),
	}
}

// SetHTTPClient replaces the transport; nil restores the default.
func (c *Client) SetHTTPClient(doer httpDoer) {
	if doer == nil {
		c.http = makeHTTPClient(c.prov)
		return
	}
	c.http = doer
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(prov Provider) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if prov.Proxy != "" {
		parsed, err := url.Parse(prov.Proxy)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   prov.Timeout,
	}
}

// ---------------------------------------------------------------------------
// Request / response
// ---------------------------------------------------------------------------

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.prov.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Translate sends the fields and returns the translated fields.
func (c *Client) Translate(ctx context.Context, fields Fields) (Fields, error) {
	messages, err := Messages(c.opts, fields)
	if err != nil {
		return nil, err
	}
	body, err := marshalNoEscape(chatCompletionRequest{
		Model:       c.prov.Model,
		Messages:    messages,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.prov.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.prov.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.prov.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", c.prov.Name, err)
	}

	content, err := extractResponseText(respBody)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if err != nil && !errors.Is(err, ErrInvalidResponse) {
			return nil, fmt.Errorf("%s returned status %d: %w", c.prov.Name, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%s returned status %d: %s", c.prov.Name, resp.StatusCode, truncate(string(respBody), 300))
	}
	if err != nil {
		return nil, err
	}

	return ParseFields(content)
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// extractResponseText returns choices[0].message.content of a chat reply.
// An "error" object in the body is reported as the API's message.
func extractResponseText(body []byte) (string, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: body is not JSON: %s", ErrInvalidResponse, truncate(string(body), 200))
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", fmt.Errorf("%w: no choices[0].message.content", ErrInvalidResponse)
	}
	return *resp.Choices[0].Message.Content, nil
}

// ---------------------------------------------------------------------------
// Translation content parsing
// ---------------------------------------------------------------------------

var wrappingCodeBlock = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseFields decodes the model's reply into fields. The reply must hold a
// JSON object; it is decoded as is first, then out of a markdown code block
// wrapping the whole reply, then from its first "{" to its last "}" so a
// sentence of chatter around the object is tolerated. String values are
// kept verbatim, null counts as an absent key, numbers and booleans are
// rendered as text; arrays and objects make the whole reply invalid.
func ParseFields(content string) (Fields, error) {
	raw := strings.TrimSpace(content)

	candidates := []string{raw}
	if m := wrappingCodeBlock.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}

	var decoded map[string]any
	for _, c := range candidates {
		if decoded = decodeObject(c); decoded != nil {
			break
		}
	}
	if decoded == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, truncate(content, 200))
	}

	fields := make(Fields, len(decoded))
	for key, value := range decoded {
		switch v := value.(type) {
		case nil:
		case string:
			fields[key] = v
		case json.Number:
			fields[key] = v.String()
		case bool:
			fields[key] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("%w: field %q is not a string", ErrInvalidResponse, key)
		}
	}
	return fields, nil
}

// decodeObject returns the JSON object in s, or nil when s is anything else.
func decodeObject(s string) map[string]any {
	var decoded map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil
	}
	if dec.More() {
		return nil
	}
	return decoded
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

// Messages returns the conversation Translate would send for fields.
func (c *Client) Messages(fields Fields) ([]Message, error) {
	return Messages(c.opts, fields)
}
