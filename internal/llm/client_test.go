package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/arcanist/spelltree/pkg/spelltree/internalerr"
	"github.com/arcanist/spelltree/pkg/spelltree/spell"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func testItems() []spell.Item {
	return []spell.Item{
		{ID: "0x0001", Name: "Flames", School: "Destruction", Tier: "Novice"},
		{ID: "0x0002", Name: "Firebolt", School: "Destruction", Tier: "Apprentice"},
	}
}

func TestProposeChainsSuccess(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				body, _ := io.ReadAll(req.Body)
				if !strings.Contains(string(body), "SPELLS") {
					t.Fatalf("expected spell block in payload")
				}
				reply := "Here you go:\n" +
					`{"chains":[{"name":"Fire Mastery","narrative":"Burn things.","spellIds":["0x0001","0x0002"]}]}`
				wrapped := `{"choices":[{"message":{"role":"assistant","content":` + jsonQuote(reply) + `}}]}`
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(wrapped)),
					Header:     make(http.Header),
				}
			}),
		},
	}

	chains, err := client.ProposeChains(context.Background(), "Destruction", testItems())
	if err != nil {
		t.Fatalf("ProposeChains: %v", err)
	}
	if len(chains) != 1 {
		t.Fatalf("expected 1 chain, got %d", len(chains))
	}
	if chains[0].Name != "Fire Mastery" {
		t.Fatalf("unexpected chain name: %s", chains[0].Name)
	}
	if len(chains[0].SpellIDs) != 2 {
		t.Fatalf("expected 2 spell ids, got %d", len(chains[0].SpellIDs))
	}
}

func TestProposeChainsAPIError(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"bad"}}`)),
					Header:     make(http.Header),
				}
			}),
		},
	}
	_, err := client.ProposeChains(context.Background(), "Destruction", testItems())
	if !errors.Is(err, internalerr.ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}
}

func TestProposeChainsMalformedReply(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(`{"choices":[{"message":{"role":"assistant","content":"no json here"}}]}`)),
					Header:     make(http.Header),
				}
			}),
		},
	}
	if _, err := client.ProposeChains(context.Background(), "Destruction", testItems()); err == nil {
		t.Fatal("expected error")
	}
}

func TestChat(t *testing.T) {
	client := &Client{
		BaseURL: "https://api.test/v1/chat/completions",
		Model:   "gpt-test",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				return &http.Response{
					StatusCode: 200,
					Body:       io.NopCloser(strings.NewReader(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`)),
					Header:     make(http.Header),
				}
			}),
		},
	}
	out, err := client.Chat(context.Background(), "system", "user prompt")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "hi" {
		t.Fatalf("unexpected chat output %s", out)
	}
}

func jsonQuote(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}
