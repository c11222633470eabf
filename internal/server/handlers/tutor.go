package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"

	apperrors "github.com/agritutor/agritutor/internal/errors"
	"github.com/agritutor/agritutor/internal/media"
	"github.com/agritutor/agritutor/internal/prompt"
	"github.com/agritutor/agritutor/internal/tutor"
	"github.com/agritutor/agritutor/internal/tutor/encode"
)

// Tutor is the subset of tutor.Service used by the HTTP API.
type Tutor interface {
	Ask(ctx context.Context, req tutor.AskRequest) (*tutor.Answer, error)
	AskTemplate(ctx context.Context, req tutor.TemplateRequest) (*tutor.Answer, error)
	Lesson(ctx context.Context, req tutor.LessonRequest) (*tutor.Answer, error)
}

// TutorHandler serves model-backed endpoints.
type TutorHandler struct {
	Tutor        Tutor
	Media        media.Options
	MaxBodyBytes int64
}

// AttachmentInput is an inline file. Data is base64 or a data: URL.
type AttachmentInput struct {
	Name     string `json:"name,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     string `json:"data"`
}

// AskRequest is the body of POST /v1/ask. When TemplateID is set the
// template is filled from Values and Prompt is ignored.
type AskRequest struct {
	Prompt      string            `json:"prompt,omitempty"`
	TemplateID  string            `json:"template_id,omitempty"`
	Values      prompt.Values     `json:"values,omitempty"`
	Attachments []AttachmentInput `json:"attachments,omitempty"`
	Model       string            `json:"model,omitempty"`
	Raw         bool              `json:"raw,omitempty"`
	NoCache     bool              `json:"no_cache,omitempty"`
}

// LessonRequest is the body of POST /v1/lessons.
type LessonRequest struct {
	Topic       string `json:"topic"`
	Purpose     string `json:"purpose,omitempty"`
	StrongTopic string `json:"strong_topic,omitempty"`
	Region      string `json:"region,omitempty"`
	Model       string `json:"model,omitempty"`
	NoCache     bool   `json:"no_cache,omitempty"`
}

// Ask handles POST /v1/ask.
func (h *TutorHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if h.Tutor == nil {
		respondWithError(w, r, tutor.ErrNotConfigured)
		return
	}

	var req AskRequest
	if !decodeJSON(w, r, h.MaxBodyBytes, &req) {
		return
	}

	attachments, err := h.prepareAttachments(req.Attachments)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var answer *tutor.Answer
	if id := strings.TrimSpace(req.TemplateID); id != "" {
		answer, err = h.Tutor.AskTemplate(r.Context(), tutor.TemplateRequest{
			TemplateID:  id,
			Values:      req.Values,
			Attachments: attachments,
			Model:       req.Model,
			NoCache:     req.NoCache,
		})
	} else {
		answer, err = h.Tutor.Ask(r.Context(), tutor.AskRequest{
			Prompt:      req.Prompt,
			Attachments: attachments,
			Model:       req.Model,
			Wrap:        !req.Raw,
			NoCache:     req.NoCache,
		})
	}
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// Lesson handles POST /v1/lessons. An empty purpose means explain.
func (h *TutorHandler) Lesson(w http.ResponseWriter, r *http.Request) {
	if h.Tutor == nil {
		respondWithError(w, r, tutor.ErrNotConfigured)
		return
	}

	var req LessonRequest
	if !decodeJSON(w, r, h.MaxBodyBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("topic is required"))
		return
	}

	purpose := prompt.PurposeExplain
	if strings.TrimSpace(req.Purpose) != "" {
		parsed, err := prompt.ParsePurpose(req.Purpose)
		if err != nil {
			respondWithError(w, r, err)
			return
		}
		purpose = parsed
	}

	answer, err := h.Tutor.Lesson(r.Context(), tutor.LessonRequest{
		Topic:   req.Topic,
		Purpose: purpose,
		Extra:   prompt.Extra{StrongTopic: strings.TrimSpace(req.StrongTopic), Region: strings.TrimSpace(req.Region)},
		Model:   req.Model,
		NoCache: req.NoCache,
	})
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *TutorHandler) prepareAttachments(inputs []AttachmentInput) ([]media.Attachment, error) {
	out := make([]media.Attachment, 0, len(inputs))
	for i, in := range inputs {
		mimeType, data, err := encode.DecodeDataURL(in.Data)
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("attachment %d: invalid base64 data", i))
		}
		if mimeType == "" {
			mimeType = in.MIMEType
		}

		att, err := media.Prepare(attachmentName(in.Name, mimeType, i), data, h.Media)
		if err != nil {
			return nil, fmt.Errorf("attachment %d: %w", i, err)
		}
		out = append(out, att)
	}
	return out, nil
}

var knownExtensions = map[string]string{
	media.MIMEJPEG: ".jpg",
	media.MIMEPNG:  ".png",
	media.MIMEGIF:  ".gif",
	media.MIMEWEBP: ".webp",
	media.MIMEPDF:  ".pdf",
	media.MIMEText: ".txt",
}

// attachmentName returns a file name whose extension reflects mimeType so
// content detection can fall back to it.
func attachmentName(name, mimeType string, idx int) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	name = fmt.Sprintf("attachment-%d", idx+1)
	if ext, ok := knownExtensions[mimeType]; ok {
		return name + ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		name += exts[0]
	}
	return name
}
