package domain

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"duochat/errors"
)

func TestDraft_Empty_Is_Rejected(t *testing.T) {
	req := require.New(t)
	req.ErrorIs(Draft{}.Validate(100), errors.ErrEmptyMessage)
}

func TestDraft_Content_Length_Limit(t *testing.T) {
	req := require.New(t)

	fits := strings.Repeat("a", 100)
	req.NoError(Draft{Content: &fits}.Validate(100))

	over := strings.Repeat("a", 101)
	req.ErrorIs(Draft{Content: &over}.Validate(100), errors.ErrContentTooLong)
}

func TestDraft_Attachment_Requires_Allowed_Type(t *testing.T) {
	req := require.New(t)
	url := "https://cdn.example/cat.webp"

	// Given a declared type outside the allow list
	draft := Draft{AttachmentURL: &url, AttachmentTyp: lo.ToPtr("application/x-msdownload")}
	req.ErrorIs(draft.Validate(100), errors.ErrAttachmentType)

	// Given no declared type at all
	draft = Draft{AttachmentURL: &url}
	req.ErrorIs(draft.Validate(100), errors.ErrAttachmentType)

	// Given an allowed type with a parameter suffix
	draft = Draft{AttachmentURL: &url, AttachmentTyp: lo.ToPtr("image/webp; q=1")}
	req.NoError(draft.Validate(100))
}

func TestDraft_Attachment_URL_Must_Parse(t *testing.T) {
	req := require.New(t)
	draft := Draft{AttachmentURL: lo.ToPtr("not a url"), AttachmentTyp: lo.ToPtr("image/png")}
	req.Error(draft.Validate(100))
}

func TestDraft_Attachment_Builds_The_Reference(t *testing.T) {
	req := require.New(t)

	req.Nil(Draft{Content: lo.ToPtr("text only")}.Attachment())

	draft := Draft{AttachmentURL: lo.ToPtr("https://cdn.example/doc.pdf"), AttachmentTyp: lo.ToPtr("application/pdf")}
	ref := draft.Attachment()
	req.NotNil(ref)
	req.Equal("https://cdn.example/doc.pdf", ref.URL)
	req.Equal("application/pdf", ref.MimeType)
}
