package pipeline

// Per-million-token USD rates, keyed by model name. Unknown models cost 0
// but every call is still logged; update this table when models rotate.
type modelRate struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

var modelRates = map[string]modelRate{
	"gpt-4o":                 {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":            {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"gpt-4.1":                {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":           {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"text-embedding-3-small": {InputPerMillion: 0.02},
	"text-embedding-3-large": {InputPerMillion: 0.13},
}

// EstimateCostUSD computes the static cost estimate for one model call.
func EstimateCostUSD(model string, inputTokens, outputTokens int) float64 {
	rate, ok := modelRates[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*rate.InputPerMillion +
		float64(outputTokens)/1e6*rate.OutputPerMillion
}
