package chat

import (
	"fmt"

	"github.com/suPer8Hu/mindease/internal/ai"
)

const fallbackReply = "I'm sorry, I'm having trouble responding right now. " +
	"Please try again in a moment. I'm still here for you."

// Troubleshoot turns a provider failure into remediation steps a user can act
// on. baseURL and model describe the local provider and are only used for it.
func Troubleshoot(err error, provider, baseURL, model string) []string {
	if baseURL == "" {
		baseURL = ai.DefaultOllamaBaseURL
	}
	if model == "" {
		model = ai.DefaultOllamaModel
	}

	kind, ok := ai.KindOf(err)
	if !ok {
		return []string{
			"Check that the selected AI provider is configured in AI settings",
			"Try again in a moment",
		}
	}

	switch kind {
	case ai.KindUnreachable:
		if provider == ai.ProviderOllama {
			return []string{
				fmt.Sprintf("Make sure Ollama is running and reachable at %s", baseURL),
				"Start it with: ollama serve",
				"Check the Ollama base URL in AI settings",
				"Or switch to the Google provider in AI settings",
			}
		}
		return []string{
			"Check your internet connection",
			"The AI service may be temporarily unavailable, try again shortly",
		}
	case ai.KindUnauthorized:
		if provider == ai.ProviderGoogle {
			return []string{
				"Check your Google AI API key in AI settings",
				"Create a key at https://aistudio.google.com/app/apikey",
			}
		}
		return []string{"Check the API key configured for this provider"}
	case ai.KindModelNotFound:
		if provider == ai.ProviderOllama {
			return []string{
				fmt.Sprintf("Pull the model with: ollama pull %s", model),
				"Or pick an installed model in AI settings (see: ollama list)",
			}
		}
		return []string{"Check the model name configured for this provider"}
	case ai.KindTimeout:
		steps := []string{"The model took too long to respond, try again"}
		if provider == ai.ProviderOllama {
			steps = append(steps, "Try a smaller local model, or make sure no other job is using the GPU")
		}
		return steps
	default:
		return []string{
			"The AI service returned an unexpected response, try again shortly",
			"If this keeps happening, switch providers in AI settings",
		}
	}
}
