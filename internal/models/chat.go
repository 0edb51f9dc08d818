package models

// ChatMessage is one turn in an OpenAI-compatible chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
