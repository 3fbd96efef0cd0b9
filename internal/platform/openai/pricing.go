package openai

import "strings"

// Per-million-token prices in USD. Unknown models fall back to the gpt-4o
// rate so costs are never silently zero.
var tokenPrices = map[string][2]float64{
	"gpt-4o":        {2.50, 10.00},
	"gpt-4o-mini":   {0.15, 0.60},
	"gpt-4.1":       {2.00, 8.00},
	"deepseek-chat": {0.27, 1.10},
}

func tokenCost(model string, promptTokens, completionTokens int) float64 {
	price, ok := tokenPrices[strings.ToLower(model)]
	if !ok {
		price = tokenPrices["gpt-4o"]
	}
	return float64(promptTokens)/1e6*price[0] + float64(completionTokens)/1e6*price[1]
}

func imageCost(model, size string) float64 {
	switch strings.ToLower(model) {
	case "dall-e-3":
		if size == "1792x1024" || size == "1024x1792" {
			return 0.080
		}
		return 0.040
	case "dall-e-2":
		return 0.020
	default:
		return 0.040
	}
}

// TTS is priced per input character.
func ttsCost(model string, chars int) float64 {
	perMillion := 15.0
	if strings.Contains(strings.ToLower(model), "hd") {
		perMillion = 30.0
	}
	return float64(chars) / 1e6 * perMillion
}
