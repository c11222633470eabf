package openai

import (
	"fmt"
	"strings"

	"github.com/agritutor/agritutor/internal/tutor/content"
	"github.com/agritutor/agritutor/internal/tutor/driver"
	"github.com/agritutor/agritutor/internal/tutor/encode"
)

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
	File     *filePart `json:"file,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type filePart struct {
	Filename string `json:"filename"`
	FileData string `json:"file_data"`
}

func buildChatRequest(req *driver.Request) (*chatCompletionRequest, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("model is required")
	}

	messages, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	return &chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

func convertMessages(messages []content.Message) ([]chatMessage, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages are required")
	}
	result := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		contentValue, err := convertContent(msg.Content)
		if err != nil {
			return nil, err
		}
		result = append(result, chatMessage{Role: msg.Role, Content: contentValue})
	}
	return result, nil
}

// convertContent collapses a lone text block to a plain string and otherwise
// emits typed parts.
func convertContent(blocks []content.ContentBlock) (interface{}, error) {
	if len(blocks) == 0 {
		return "", nil
	}
	if len(blocks) == 1 && blocks[0].Type == content.ContentTypeText {
		return blocks[0].Text, nil
	}

	parts := make([]contentPart, 0, len(blocks))
	for i, block := range blocks {
		switch {
		case block.Type == content.ContentTypeText || block.Type == content.ContentTypeJSON:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		case block.Type.IsImage():
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: encode.DataURL(string(block.Type), block.Data)},
			})
		case block.Type == content.ContentTypePDF:
			parts = append(parts, contentPart{
				Type: "file",
				File: &filePart{
					Filename: fmt.Sprintf("attachment-%d.pdf", i+1),
					FileData: encode.DataURL(string(block.Type), block.Data),
				},
			})
		default:
			return nil, fmt.Errorf("unsupported content type: %s", block.Type)
		}
	}
	return parts, nil
}
