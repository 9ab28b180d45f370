package router

import "strings"

// pricing holds input/output cost in US cents per 1k tokens. Matched by
// longest model-name prefix; unknown models cost zero.
type pricing struct {
	prefix     string
	inCents1k  float64
	outCents1k float64
}

var priceTable = []pricing{
	{prefix: "gpt-4o-mini", inCents1k: 0.015, outCents1k: 0.060},
	{prefix: "gpt-4o", inCents1k: 0.250, outCents1k: 1.000},
	{prefix: "gpt-4", inCents1k: 3.000, outCents1k: 6.000},
	{prefix: "gpt-3.5", inCents1k: 0.050, outCents1k: 0.150},
	{prefix: "claude-3-5-haiku", inCents1k: 0.080, outCents1k: 0.400},
	{prefix: "claude-3-5-sonnet", inCents1k: 0.300, outCents1k: 1.500},
	{prefix: "claude", inCents1k: 0.300, outCents1k: 1.500},
}

// estimateCostCents prices a call from approximate token counts. Local
// models fall through to zero.
func estimateCostCents(model string, inputTokens, outputTokens int) float64 {
	best := pricing{}
	for _, p := range priceTable {
		if strings.HasPrefix(model, p.prefix) && len(p.prefix) > len(best.prefix) {
			best = p
		}
	}
	return float64(inputTokens)/1000*best.inCents1k + float64(outputTokens)/1000*best.outCents1k
}
