package model

import "os"

// Adapter constructs a Backend from a resolved spec. The provider set is
// closed; unknown names fall back to the default provider at resolution
// time rather than silently doing nothing.
type Adapter interface {
	Create(spec Spec) (Backend, error)
}

// openAICompatAdapter covers every provider exposing an OpenAI-style
// chat-completions endpoint. The API key comes from the spec's api_key_env
// indirection first, then the provider's conventional variable.
type openAICompatAdapter struct {
	fallbackKeyEnv string
	defaultBaseURL string
}

func (a *openAICompatAdapter) Create(spec Spec) (Backend, error) {
	apiKey := ""
	if spec.APIKeyEnv != "" {
		apiKey = os.Getenv(spec.APIKeyEnv)
	}
	if apiKey == "" && a.fallbackKeyEnv != "" {
		apiKey = os.Getenv(a.fallbackKeyEnv)
	}
	if spec.BaseURL == "" {
		spec.BaseURL = a.defaultBaseURL
	}
	return newOpenAIClient(spec, apiKey), nil
}

func defaultAdapters() map[string]Adapter {
	return map[string]Adapter{
		"zhipu": &openAICompatAdapter{
			fallbackKeyEnv: "ZHIPUAI_API_KEY",
			defaultBaseURL: "https://open.bigmodel.cn/api/paas/v4",
		},
		"openai": &openAICompatAdapter{
			fallbackKeyEnv: "OPENAI_API_KEY",
			defaultBaseURL: "https://api.openai.com/v1",
		},
		"doubao": &openAICompatAdapter{
			fallbackKeyEnv: "ARK_API_KEY",
			defaultBaseURL: "https://ark.cn-beijing.volces.com/api/v3",
		},
		"nvidia": &openAICompatAdapter{
			fallbackKeyEnv: "NVIDIA_API_KEY",
			defaultBaseURL: "https://integrate.api.nvidia.com/v1",
		},
	}
}
