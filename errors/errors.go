package errors

import "fmt"

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Draft validation, rejected before any gateway call.
	ErrEmptyMessage     = fmt.Errorf("message needs content or an attachment")
	ErrContentTooLong   = fmt.Errorf("message content exceeds the allowed length")
	ErrAttachmentType   = fmt.Errorf("attachment type is not allowed")
	ErrBadIdentifier    = fmt.Errorf("identifier is not a valid uuid")
	ErrSelfChat         = fmt.Errorf("a chat needs two distinct participants")
	ErrChatNotFound     = fmt.Errorf("chat does not exist")
	ErrProfileNotFound  = fmt.Errorf("profile does not exist")
	ErrMessageNotFound  = fmt.Errorf("message does not exist")
	ErrNotParticipant   = fmt.Errorf("user is not a participant of this chat")
	ErrNoChatSelected   = fmt.Errorf("no chat is currently selected")
	ErrTrackerStopped   = fmt.Errorf("presence tracker is not running")
	ErrBusClosed        = fmt.Errorf("event bus is closed")
	ErrStatusRegression = fmt.Errorf("message status can only move forward")
)
