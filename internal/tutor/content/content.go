package content

import "strings"

// ContentType is an IANA media type.
type ContentType string

const (
	ContentTypeText ContentType = "text/plain"
	ContentTypeJSON ContentType = "application/json"
	ContentTypePDF  ContentType = "application/pdf"
	ContentTypeJPEG ContentType = "image/jpeg"
	ContentTypePNG  ContentType = "image/png"
	ContentTypeWEBP ContentType = "image/webp"
	ContentTypeGIF  ContentType = "image/gif"
)

// IsImage reports whether t is an image media type.
func (t ContentType) IsImage() bool {
	return strings.HasPrefix(string(t), "image/")
}

// ContentBlock is a single piece of message content. Text blocks carry Text;
// every other type carries inline Data.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
	Data []byte      `json:"data,omitempty"`
}

// Text returns a text block.
func Text(s string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: s}
}

// Inline returns a block carrying raw bytes of the given media type.
func Inline(t ContentType, data []byte) ContentBlock {
	return ContentBlock{Type: t, Data: data}
}

// IsInline reports whether the block carries bytes rather than text.
func (b ContentBlock) IsInline() bool {
	return b.Type != ContentTypeText && b.Type != ContentTypeJSON
}

// Message is a chat message.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// UserMessage builds a user message from blocks.
func UserMessage(blocks ...ContentBlock) Message {
	return Message{Role: "user", Content: blocks}
}
