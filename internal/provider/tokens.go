package provider

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// The embedded BPE tables keep token estimates off the network; the default
// loader would fetch them over HTTP inside Route.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenEstimator estimates the tokens of text for model.
type TokenEstimator func(model, text string) int

var encodings sync.Map // model -> *tiktoken.Tiktoken

// EstimateTokens counts tokens with the model's tiktoken encoding, falling
// back to cl100k_base and then to one token per four bytes.
func EstimateTokens(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// encodingFor caches successful lookups only, so a failure is retried on
// the next call instead of pinning the byte heuristic.
func encodingFor(model string) *tiktoken.Tiktoken {
	if cached, ok := encodings.Load(model); ok {
		return cached.(*tiktoken.Tiktoken)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil || enc == nil {
		return nil
	}
	actual, _ := encodings.LoadOrStore(model, enc)
	return actual.(*tiktoken.Tiktoken)
}
