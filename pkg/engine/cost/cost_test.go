package cost

import (
	"testing"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

func TestEstimateKnownModel(t *testing.T) {
	c := Calculator{}
	est := c.Estimate("gpt-4o", api.UsageData{InputTokens: 1_000_000, OutputTokens: 1_000_000})
	if est.Unpriced {
		t.Fatalf("expected priced model")
	}
	if est.TotalUSD != 12.50 {
		t.Fatalf("expected 12.50, got %v", est.TotalUSD)
	}
}

func TestEstimateUnknownModel(t *testing.T) {
	c := Calculator{}
	est := c.Estimate("some-future-model", api.UsageData{InputTokens: 100})
	if !est.Unpriced {
		t.Fatalf("expected unpriced result for unknown model")
	}
	if est.TotalUSD != 0 {
		t.Fatalf("expected zero cost for unpriced model, got %v", est.TotalUSD)
	}
}
