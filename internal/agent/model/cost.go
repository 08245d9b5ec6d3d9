package model

import (
	"github.com/cloudwego/eino/schema"
)

// Pricing defines USD cost per 1M tokens for input/output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing provides hardcoded USD pricing per 1M tokens (text tokens).
var defaultPricing = map[string]Pricing{
	// Source: Gemini pricing (Standard; text). Adjust for audio if needed.
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
}

// Per-turn audio-side estimates, folded into the session cost ceiling so the
// governor sees the whole spend, not just LLM tokens.
const (
	// TranscriptionPerMinuteUSD approximates streaming STT pricing.
	TranscriptionPerMinuteUSD = 0.0043
	// SynthesisPerKCharsUSD approximates character-billed TTS pricing.
	SynthesisPerKCharsUSD = 0.18
)

// ResolvePricing returns hardcoded pricing for a model.
func ResolvePricing(model string) Pricing {
	p, ok := defaultPricing[model]
	if !ok {
		// fallback to zero pricing if unknown
		return Pricing{}
	}
	return p
}

// ComputeCost converts token usage to USD cost using per-1M Pricing.
func ComputeCost(usage *schema.TokenUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.PromptTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.CompletionTokens) / 1_000_000.0
	total = inputCost + outputCost
	return
}

// EstimateTurnCost approximates the audio cost of one spoken turn: the
// caller's audio transcribed plus the agent's reply synthesized.
func EstimateTurnCost(audioSeconds float64, replyChars int) float64 {
	stt := audioSeconds / 60.0 * TranscriptionPerMinuteUSD
	tts := float64(replyChars) / 1000.0 * SynthesisPerKCharsUSD
	return stt + tts
}
