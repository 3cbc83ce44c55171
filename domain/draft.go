package domain

import (
	"github.com/go-playground/validator/v10"

	"duochat/domain/mimetypes"
	"duochat/errors"
)

var validate = validator.New()

// Draft is what a sender hands to SendMessage before any network call.
// Either Content or Attachment must be set.
type Draft struct {
	Content       *string `validate:"omitempty,min=1"`
	AttachmentURL *string `validate:"omitempty,url"`
	AttachmentTyp *string `validate:"omitempty,min=3"`
}

// Validate rejects invalid drafts synchronously, before the gateway is touched.
func (d Draft) Validate(maxContentLength int) error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	if d.Content == nil && d.AttachmentURL == nil {
		return errors.ErrEmptyMessage
	}
	if d.Content != nil && len(*d.Content) > maxContentLength {
		return errors.ErrContentTooLong
	}
	if d.AttachmentURL != nil {
		if d.AttachmentTyp == nil || !mimetypes.AttachmentAllowed(*d.AttachmentTyp) {
			return errors.ErrAttachmentType
		}
	}
	return nil
}

// Attachment builds the reference carried by the stored message, nil when
// the draft is text-only.
func (d Draft) Attachment() *AttachmentRef {
	if d.AttachmentURL == nil {
		return nil
	}
	return &AttachmentRef{URL: *d.AttachmentURL, MimeType: *d.AttachmentTyp}
}
