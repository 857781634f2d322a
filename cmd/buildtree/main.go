package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/arcanist/spelltree/internal/llm"
	"github.com/arcanist/spelltree/pkg/spelltree"
	"github.com/arcanist/spelltree/pkg/spelltree/config"
	"github.com/arcanist/spelltree/pkg/spelltree/tree"
)

// buildtree reads one wire request from a file (or stdin) and prints
// the response JSON. It is the offline path for the same commands the
// HTTP service serves.
func main() {
	var (
		inPath       = flag.String("in", "-", "Request JSON file, - for stdin")
		stoplistPath = flag.String("stoplist", "", "Stopword YAML file (optional)")
		hintsPath    = flag.String("hints", "", "Theme hints YAML file (optional)")
		tiersPath    = flag.String("lock-tiers", "", "Lock tier table YAML file (optional)")
		llmURL       = flag.String("llm-url", "", "OpenAI-compatible endpoint for the oracle strategy (optional)")
		llmKey       = flag.String("llm-key", "", "API key for the oracle endpoint")
		llmModel     = flag.String("llm-model", "", "Model name for the oracle strategy")
		pretty       = flag.Bool("pretty", false, "Indent the response JSON")
	)
	flag.Parse()

	raw, err := readInput(*inPath)
	if err != nil {
		log.Fatal("Failed to read request:", err)
	}

	loader := config.Loader{
		StoplistPath:   *stoplistPath,
		ThemeHintsPath: *hintsPath,
		LockTiersPath:  *tiersPath,
	}
	components, err := loader.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	var oracle tree.ChainOracle
	if *llmURL != "" && *llmModel != "" {
		oracle = &llm.Client{BaseURL: *llmURL, APIKey: *llmKey, Model: *llmModel}
	}

	engine := spelltree.New(spelltree.Options{
		Tokenizer:    components.Tokenizer,
		Discoverer:   components.Discoverer,
		Oracle:       oracle,
		TierPercents: components.TierPercents,
	})
	defer engine.Close()

	result, err := engine.Dispatch(context.Background(), raw)
	if err != nil {
		log.Fatal("Request failed:", err)
	}

	if *pretty {
		var buf json.RawMessage = result
		out, err := json.MarshalIndent(buf, "", "  ")
		if err == nil {
			result = out
		}
	}
	fmt.Println(string(result))
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
