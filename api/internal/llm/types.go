package llm

import "strings"

const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// Request is a single user message made of ordered content parts.
type Request struct {
	Model     string `json:"model,omitempty"`
	Parts     []Part `json:"parts"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data URL
}

func TextPart(s string) Part    { return Part{Type: PartText, Text: s} }
func ImagePart(url string) Part { return Part{Type: PartImageURL, ImageURL: url} }

type Response struct {
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message Message `json:"message"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FirstContent is the trimmed content of the first choice, or "".
func (r Response) FirstContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Choices[0].Message.Content)
}
