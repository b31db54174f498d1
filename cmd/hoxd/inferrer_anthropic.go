package main

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hoxforge/hox/internal/config"
	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/loop"
)

// defaultModel is used when .hox/config.toml's [models].default is unset.
const defaultModel = "claude-sonnet-4-5"

// perMillionTokenRates gives an approximate USD cost per million input and
// output tokens for models this CLI knows the pricing of. An unrecognized
// model prices at 0: the loop engine's token-based stop condition still
// bounds a run even when the dollar-based one can't.
var perMillionTokenRates = map[string][2]float64{
	"claude-sonnet-4-5": {3.00, 15.00},
	"claude-opus-4-1":   {15.00, 75.00},
	"claude-haiku-4-5":  {1.00, 5.00},
}

// anthropicInferrer adapts github.com/anthropics/anthropic-sdk-go to
// internal/loop.Inferrer: the seam SPEC_FULL.md §11 calls for, kept out of
// internal/loop itself so the engine never depends on a live API key.
type anthropicInferrer struct {
	client *anthropic.Client
	model  string
}

// newAnthropicInferrer reads the API key from the environment variable
// named by cfg.Models.APIKeyEnv, falling back to ANTHROPIC_API_KEY. Per
// spec §6, absence of a usable credential produces an auth error only when
// the inferrer is actually invoked, not at construction time.
func newAnthropicInferrer(cfg config.Config) *anthropicInferrer {
	keyEnv := cfg.Models.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "ANTHROPIC_API_KEY"
	}
	model := cfg.Models.Default
	if model == "" {
		model = defaultModel
	}

	client := anthropic.NewClient(option.WithAPIKey(os.Getenv(keyEnv)))
	return &anthropicInferrer{client: &client, model: model}
}

func (a *anthropicInferrer) Infer(ctx context.Context, prompt string) (string, loop.Usage, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", loop.Usage{}, herr.Wrap(herr.KindAuth, err, "anthropic messages.new")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	inTok := msg.Usage.InputTokens
	outTok := msg.Usage.OutputTokens
	usage := loop.Usage{
		Tokens:  inTok + outTok,
		CostUSD: estimateCostUSD(a.model, inTok, outTok),
	}
	return sb.String(), usage, nil
}

func estimateCostUSD(model string, inTok, outTok int64) float64 {
	rates, ok := perMillionTokenRates[model]
	if !ok {
		return 0
	}
	return float64(inTok)/1_000_000*rates[0] + float64(outTok)/1_000_000*rates[1]
}
