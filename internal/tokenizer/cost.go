package tokenizer

// Rate is USD per token (not per million) for one side of a call.
type Rate struct {
	Input  float64
	Output float64
}

// CostTable is a static mapping from "provider/model" to USD-per-token
// rates. Unknown models default to the zero Rate, and callers must log a
// warning when that default is used (see llm.Connector.Call).
type CostTable struct {
	rates map[string]Rate
}

// costPerMillion mirrors original_source/config/settings.py's COST_TABLE,
// translated from USD-per-million-tokens to USD-per-token.
var costPerMillion = map[string][2]float64{
	"anthropic/claude-3-5-sonnet-20241022": {3.0, 15.0},
	"anthropic/claude-3-5-sonnet-20240620": {3.0, 15.0},
	"openai/gpt-4o":                        {2.5, 10.0},
	"openai/gpt-4o-mini":                   {0.15, 0.6},
	"google/gemini-1.5-pro":                {1.25, 5.0},
	"google/gemini-1.5-flash":              {0.075, 0.3},
}

// NewCostTable builds the default cost table.
func NewCostTable() *CostTable {
	rates := make(map[string]Rate, len(costPerMillion))
	for model, pair := range costPerMillion {
		rates[model] = Rate{Input: pair[0] / 1_000_000, Output: pair[1] / 1_000_000}
	}
	return &CostTable{rates: rates}
}

// Rate returns the input/output rate for model, and whether the model was
// known. Unknown models get the zero Rate.
func (t *CostTable) Rate(model string) (Rate, bool) {
	r, ok := t.rates[model]
	return r, ok
}

// EstimateCost computes cost = promptTokens*input_rate + completionTokens*output_rate.
func (t *CostTable) EstimateCost(model string, promptTokens, completionTokens int) (cost float64, known bool) {
	r, ok := t.rates[model]
	if !ok {
		return 0, false
	}
	return float64(promptTokens)*r.Input + float64(completionTokens)*r.Output, true
}
