package persona

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultTemperature = 0.9
)

var ErrNoAPIKey = errors.New("persona: API key is not set")

// Gemini generates replies with the Gemini API.
type Gemini struct {
	chats       *genai.Chats
	model       string
	temperature float32
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("persona: create client: %w", err)
	}
	return &Gemini{chats: client.Chats, model: model, temperature: DefaultTemperature}, nil
}

func (g *Gemini) Generate(ctx context.Context, history []Turn, systemInstruction, userMessage string) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		var role genai.Role = genai.RoleUser
		if t.FromModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](g.temperature),
	}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	chat, err := g.chats.Create(ctx, g.model, config, contents)
	if err != nil {
		return "", fmt.Errorf("persona: create chat: %w", err)
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: userMessage})
	if err != nil {
		return "", fmt.Errorf("persona: send message: %w", err)
	}
	return resp.Text(), nil
}
