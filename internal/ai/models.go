package ai

// Default model tiers per provider.
var DefaultModels = map[string]ModelTiers{
	"doubao": {
		Cheap:   ModelConfig{Model: "doubao-pro-32k", CostPer1KTok: 0.0001},
		Premium: ModelConfig{Model: "doubao-pro-256k", CostPer1KTok: 0.0007},
	},
	"gemini": {
		Cheap:   ModelConfig{Model: "gemini-2.0-flash", CostPer1KTok: 0.0001},
		Premium: ModelConfig{Model: "gemini-2.0-pro", CostPer1KTok: 0.003},
	},
	"openai": {
		Cheap:   ModelConfig{Model: "gpt-4o-mini", CostPer1KTok: 0.00015},
		Premium: ModelConfig{Model: "gpt-4o", CostPer1KTok: 0.005},
	},
	"deepseek": {
		Cheap:   ModelConfig{Model: "deepseek-chat", CostPer1KTok: 0.00014},
		Premium: ModelConfig{Model: "deepseek-reasoner", CostPer1KTok: 0.00055},
	},
}
