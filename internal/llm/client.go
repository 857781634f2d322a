// Package llm calls an OpenAI-compatible chat completion endpoint and
// adapts it to the tree builder's chain oracle.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// Client calls an OpenAI-compatible chat completion endpoint.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds one completion call; zero means 15s.
	Timeout time.Duration

	HTTPClient *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ProposeChains implements tree.ChainOracle: it asks the model to group
// a category's items into ordered thematic learning chains.
func (c *Client) ProposeChains(ctx context.Context, school string, items []spell.Item) ([]tree.Chain, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	system := "You are a spell taxonomy expert. Group spells into thematic learning chains. Return only valid JSON."
	content, err := c.Chat(ctx, system, groupingPrompt(school, items))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrLLMUnavailable, err)
	}

	chains, err := parseChains(content)
	if err != nil {
		return nil, err
	}
	return chains, nil
}

// Chat sends one system+user exchange and returns the reply content.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	if c.BaseURL == "" || c.Model == "" {
		return "", fmt.Errorf("llm: base URL and model required")
	}
	messages := []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}}
	payload, err := c.send(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return payload.Choices[0].Message.Content, nil
}

func (c *Client) send(ctx context.Context, messages []chatMessage) (*chatResponse, error) {
	reqBody, err := json.Marshal(chatRequest{Model: c.Model, Messages: messages})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Error != nil {
		return nil, fmt.Errorf("llm error: %s", payload.Error.Message)
	}
	return &payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// groupingPrompt lists every item compactly and pins the reply format.
func groupingPrompt(school string, items []spell.Item) string {
	var spells bytes.Buffer
	for _, it := range items {
		fmt.Fprintf(&spells, "  - id=%q name=%q tier=%s", it.ID, it.Name, it.Tier)
		if len(it.EffectNames) > 0 {
			n := len(it.EffectNames)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&spells, " effects=[%s]", strings.Join(it.EffectNames[:n], ", "))
		}
		if desc := it.Description; desc != "" {
			if len(desc) > 60 {
				desc = desc[:60]
			}
			fmt.Fprintf(&spells, " desc=%q", desc)
		}
		spells.WriteByte('\n')
	}

	firstID := "0x000"
	if len(items) > 0 {
		firstID = items[0].ID
	}

	var prompt bytes.Buffer
	fmt.Fprintf(&prompt, "These are %s spells. Group them into 3-8 thematic learning chains within the %s school.\n", school, school)
	prompt.WriteString("Order each chain from simplest to most advanced. Every spell must belong to exactly one chain.\n\n")
	prompt.WriteString("SPELLS:\n")
	prompt.Write(spells.Bytes())
	prompt.WriteString("\nReturn ONLY valid JSON in this exact format (no explanation):\n")
	fmt.Fprintf(&prompt, "{\n  \"chains\": [\n    {\n      \"name\": \"Chain Theme Name\",\n      \"narrative\": \"Brief 1-sentence description\",\n      \"spellIds\": [%q, ...]\n    }\n  ]\n}\n\n", firstID)
	prompt.WriteString("RULES:\n")
	prompt.WriteString("- Every spell ID from the list above MUST appear in exactly one chain\n")
	prompt.WriteString("- Order spells within each chain from easiest to hardest\n")
	prompt.WriteString("- 3-8 chains total\n")
	prompt.WriteString("- Return ONLY the JSON object")
	return prompt.String()
}

// parseChains extracts the JSON object from a possibly fenced reply.
func parseChains(content string) ([]tree.Chain, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in reply", internalerr.ErrLLMUnavailable)
	}

	var parsed struct {
		Chains []tree.Chain `json:"chains"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrLLMUnavailable, err)
	}
	if len(parsed.Chains) == 0 {
		return nil, fmt.Errorf("%w: reply has no chains", internalerr.ErrLLMUnavailable)
	}
	return parsed.Chains, nil
}
