package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/synapse/internal/agent"
	"github.com/starford/synapse/internal/briefing"
	"github.com/starford/synapse/internal/conversation"
	"github.com/starford/synapse/internal/directive"
	"github.com/starford/synapse/internal/frontmatter"
	"github.com/starford/synapse/internal/models"
)

const (
	maxAttachments = 10
	maxHistory     = 100
)

// AttachmentDTO is a message attachment. Data is base64 in JSON.
type AttachmentDTO struct {
	Filename  string `json:"filename" example:"receipt.pdf" validate:"required"`
	MediaType string `json:"media_type" example:"application/pdf"`
	Data      []byte `json:"data" validate:"required"`
}

// Validate validates the attachment.
func (a AttachmentDTO) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Filename, validation.Required),
		validation.Field(&a.Data, validation.Required),
	)
}

// TurnDTO is one earlier message of the conversation.
type TurnDTO struct {
	Role string `json:"role" example:"user"`
	Text string `json:"text" example:"what's on my list?"`
}

// MessageRequest is the request body for POST /messages.
type MessageRequest struct {
	Text        string          `json:"text" example:"remember: tag recipes with #cooking"`
	Attachments []AttachmentDTO `json:"attachments,omitempty"`
	History     []TurnDTO       `json:"history,omitempty"`
	ThreadID    string          `json:"thread_id,omitempty" example:"1718000000.000100"`
}

// Validate validates the message. Either text or attachments are required.
func (m MessageRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Text, validation.When(len(m.Attachments) == 0,
			validation.Required.Error("text or attachments are required"))),
		validation.Field(&m.Attachments, validation.Length(0, maxAttachments)),
		validation.Field(&m.History, validation.Length(0, maxHistory)),
	)
}

func (m MessageRequest) message() agent.Message {
	msg := agent.Message{Text: m.Text, ThreadID: m.ThreadID}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{Filename: a.Filename, MediaType: a.MediaType, Data: a.Data})
	}
	for _, t := range m.History {
		msg.History = append(msg.History, conversation.Turn{Role: t.Role, Text: t.Text})
	}
	return msg
}

// MessageResponse is the engine's reply (aliased from the agent layer).
type MessageResponse = agent.Result

// DirectiveRequest is the request body for POST /directives.
type DirectiveRequest struct {
	Text string `json:"text" example:"tag recipes with #cooking" validate:"required"`
}

// Validate validates the directive.
func (d DirectiveRequest) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Text, validation.Required, validation.Length(1, directive.MaxLength)),
	)
}

// DirectiveListResponse lists directives in order; index = position + 1.
type DirectiveListResponse struct {
	Directives []string `json:"directives" validate:"required"`
}

// DirectiveAddResponse is returned after adding a directive.
type DirectiveAddResponse struct {
	Index      int      `json:"index" example:"3" validate:"required"`
	Directives []string `json:"directives" validate:"required"`
}

// DirectiveRemoveResponse is returned after removing a directive.
type DirectiveRemoveResponse struct {
	Removed    string   `json:"removed" validate:"required"`
	Directives []string `json:"directives" validate:"required"`
}

// DocumentResponse is a document split into header and body.
type DocumentResponse struct {
	Path      string                `json:"path" example:"Actions/taxes.md" validate:"required"`
	Checksum  string                `json:"checksum" validate:"required"`
	Metadata  *frontmatter.Metadata `json:"metadata" validate:"required"`
	Body      string                `json:"body"`
	Malformed bool                  `json:"malformed_header,omitempty"`
}

// MetadataPatchRequest is the request body for PATCH /documents/*. A null
// value removes the field.
type MetadataPatchRequest struct {
	Metadata map[string]any `json:"metadata" validate:"required"`
}

// Validate validates the patch.
func (p MetadataPatchRequest) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Metadata, validation.Required),
	)
}

// MetadataPatchResponse lists the fields that changed.
type MetadataPatchResponse struct {
	Path    string               `json:"path" validate:"required"`
	Changes []frontmatter.Change `json:"changes"`
}

// BriefingResponse is the daily briefing, structured and rendered.
type BriefingResponse struct {
	Text     string             `json:"text" validate:"required"`
	Briefing *briefing.Briefing `json:"briefing" validate:"required"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Filename string `json:"filename" example:"20240514_093000_image.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	Link     string `json:"link" example:"![[20240514_093000_image.png]]" validate:"required"`
}
