// Package cost estimates the USD cost of a completion from token usage.
package cost

import "github.com/agentsea/turnengine/pkg/engine/api"

// pricePerMillion is USD per 1M tokens, input/output/cache-read.
type pricePerMillion struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// table is a static pricing table for known models. Unlisted models are
// reported Unpriced.
var table = map[string]pricePerMillion{
	"gpt-4o":                 {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":            {Input: 0.15, Output: 0.60},
	"gpt-4.1":                {Input: 2.00, Output: 8.00},
	"claude-3-5-sonnet":      {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
	"claude-3-5-haiku":       {Input: 0.80, Output: 4.00, CacheRead: 0.08, CacheWrite: 1.00},
	"claude-sonnet-4":        {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
}

// Calculator is the stdlib implementation of api.CostCalculator.
type Calculator struct{}

// Estimate computes the USD cost of one completion's token usage.
func (Calculator) Estimate(model string, usage api.UsageData) api.CostEstimate {
	price, ok := table[model]
	if !ok {
		return api.CostEstimate{Model: model, Unpriced: true}
	}
	inputUSD := float64(usage.InputTokens) / 1_000_000 * price.Input
	outputUSD := float64(usage.OutputTokens) / 1_000_000 * price.Output
	cacheUSD := float64(usage.CacheReadTokens)/1_000_000*price.CacheRead +
		float64(usage.CacheCreationTokens)/1_000_000*price.CacheWrite

	return api.CostEstimate{
		Model:     model,
		InputUSD:  inputUSD,
		OutputUSD: outputUSD,
		CacheUSD:  cacheUSD,
		TotalUSD:  inputUSD + outputUSD + cacheUSD,
	}
}
