package model

// ================ Config ================
type ConversationConfig struct {
	TTL     string `envconfig:"CONVERSATION_TTL" default:"24h"`
	History struct {
		MaxTurns int `envconfig:"CONVERSATION_HISTORY_MAX_TURNS" default:"4"`
	}
	Clarification struct {
		MaxAttempts int `envconfig:"CONVERSATION_CLARIFICATION_MAX_ATTEMPTS" default:"2"`
	}
}

type RouterModelConfig struct {
	Model       string  `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"ROUTER_MAX_TOKENS" default:"1000"`
	Temperature float32 `envconfig:"ROUTER_TEMPERATURE" default:"0.1"`
}

type ResponseModelConfig struct {
	Model       string  `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"RESPONSE_TEMPERATURE" default:"0.4"`
}

type ResilienceConfig struct {
	LLM struct {
		MaxAttempts     int     `envconfig:"RESILIENCE_LLM_MAX_ATTEMPTS" default:"3"`
		TimeoutSeconds  float64 `envconfig:"RESILIENCE_LLM_TIMEOUT_SECONDS" default:"30"`
		InitialInterval float64 `envconfig:"RESILIENCE_LLM_INITIAL_INTERVAL" default:"1"`
	}
	API struct {
		MaxAttempts     int     `envconfig:"RESILIENCE_API_MAX_ATTEMPTS" default:"2"`
		TimeoutSeconds  float64 `envconfig:"RESILIENCE_API_TIMEOUT_SECONDS" default:"15"`
		InitialInterval float64 `envconfig:"RESILIENCE_API_INITIAL_INTERVAL" default:"0.5"`
	}
}

type CityAPIConfig struct {
	BaseURL       string `envconfig:"CITY_API_BASE_URL" default:"https://yazzh.gate.petersburg.ru"`
	GeoBaseURL    string `envconfig:"CITY_API_GEO_BASE_URL" default:"https://yazzh-geo.gate.petersburg.ru"`
	RegionID      string `envconfig:"CITY_API_REGION_ID" default:"78"`
	GeocodeCache  int    `envconfig:"CITY_API_GEOCODE_CACHE_SIZE" default:"1024"`
	MaxCandidates int    `envconfig:"CITY_API_MAX_CANDIDATES" default:"5"`
}

type SearchConfig struct {
	IndexPath  string `envconfig:"KB_INDEX_PATH" default:""`
	TopK       int    `envconfig:"KB_SEARCH_TOP_K" default:"3"`
	CorpusPath string `envconfig:"KB_CORPUS_PATH" default:""`
}
