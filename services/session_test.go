package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"duochat/domain"
	"duochat/domain/event"
	"duochat/errors"
	"duochat/mocks"
	"duochat/moderation"
	"duochat/presence"
	"duochat/repositories"
	"duochat/runtime"
)

const maxContentLength = 4000

// testSession wires one client against a real store and bus, the way main
// does, minus the supervisor: tests drive the workers directly when needed.
func testSession(t *testing.T, userID uuid.UUID) (*Session, *repositories.Store) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	bus := runtime.NewBus(log, 64)
	store := repositories.NewStore(db, log, bus)
	tracker := presence.NewTracker(bus, store, log)

	session := NewSession(SessionDeps{
		Gateway:          store,
		Bus:              bus,
		Tracker:          tracker,
		Log:              log,
		UserID:           userID,
		MaxContentLength: maxContentLength,
	})
	return session, store
}

func TestSession_CreateOrReuseChat_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	session, _ := testSession(t, alice)

	first, err := session.CreateOrReuseChat(ctx, bob)
	req.NoError(err)

	second, err := session.CreateOrReuseChat(ctx, bob)
	req.NoError(err)
	req.Equal(first, second)
}

func TestSession_CreateOrReuseChat_Rejects_Bad_Peers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice := uuid.New()
	session, _ := testSession(t, alice)

	_, err := session.CreateOrReuseChat(ctx, uuid.Nil)
	req.ErrorIs(err, errors.ErrBadIdentifier)

	_, err = session.CreateOrReuseChat(ctx, alice)
	req.ErrorIs(err, errors.ErrSelfChat)
}

func TestSession_SendMessage_Requires_A_Selection(t *testing.T) {
	req := require.New(t)
	session, _ := testSession(t, uuid.New())

	draft := domain.Draft{Content: lo.ToPtr("hello")}
	_, err := session.SendMessage(context.Background(), draft)
	req.ErrorIs(err, errors.ErrNoChatSelected)
	req.Empty(session.Outbox())
}

func TestSession_SendMessage_Validation_Never_Reaches_The_Outbox(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice := uuid.New()
	session, _ := testSession(t, alice)

	chatID, err := session.CreateOrReuseChat(ctx, uuid.New())
	req.NoError(err)
	req.NoError(session.SelectChat(ctx, chatID))

	// Given an empty draft
	_, err = session.SendMessage(ctx, domain.Draft{})
	req.ErrorIs(err, errors.ErrEmptyMessage)

	// Given content past the limit
	long := strings.Repeat("x", maxContentLength+1)
	_, err = session.SendMessage(ctx, domain.Draft{Content: &long})
	req.ErrorIs(err, errors.ErrContentTooLong)

	req.Empty(session.Outbox())
}

func TestSession_SendMessage_Confirms_The_Outbox_Entry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice := uuid.New()
	session, _ := testSession(t, alice)

	chatID, err := session.CreateOrReuseChat(ctx, uuid.New())
	req.NoError(err)
	req.NoError(session.SelectChat(ctx, chatID))

	msgID, err := session.SendMessage(ctx, domain.Draft{Content: lo.ToPtr("optimistic")})
	req.NoError(err)

	// Then the outbox entry is confirmed and carries the persisted row
	outbox := session.Outbox()
	req.Len(outbox, 1)
	req.Equal(OutboxConfirmed, outbox[0].State)
	req.NotNil(outbox[0].Message)
	req.Equal(msgID, outbox[0].Message.ID)

	// Then the message is visible without waiting for the bus round trip
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal(msgID, messages[0].ID)
	req.Equal(domain.StatusSent, messages[0].Status)
}

func TestSession_SendMessage_Failure_Keeps_The_Draft(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alice := uuid.New()
	gateway := mocks.NewMockGateway(ctrl)
	log := slog.Default()
	bus := runtime.NewBus(log, 64)
	session := NewSession(SessionDeps{
		Gateway:          gateway,
		Bus:              bus,
		Log:              log,
		UserID:           alice,
		MaxContentLength: maxContentLength,
	})

	chatID := uuid.New()
	gateway.EXPECT().ListMessages(gomock.Any(), chatID).Return(nil, nil)
	gateway.EXPECT().UpdateChatStatuses(gomock.Any(), chatID, alice, gomock.Any(), domain.StatusDelivered).Return(nil, nil)
	req.NoError(session.SelectChat(ctx, chatID))

	// Given a gateway that rejects the insert
	gateway.EXPECT().
		InsertMessage(gomock.Any(), chatID, alice, gomock.Any(), gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("gateway down"))

	_, err := session.SendMessage(ctx, domain.Draft{Content: lo.ToPtr("doomed")})
	req.ErrorContains(err, "sending message")

	// Then the entry is failed, not dropped, and a notice surfaced
	outbox := session.Outbox()
	req.Len(outbox, 1)
	req.Equal(OutboxFailed, outbox[0].State)
	req.ErrorContains(outbox[0].FailCause, "gateway down")
	req.Equal("doomed", *outbox[0].Draft.Content)

	notices := session.Notices()
	req.Len(notices, 1)
	req.Contains(notices[0].Text, "Failed to send message")

	// Then the drain leaves nothing behind
	req.Empty(session.Notices())
}

func TestSession_SendMessage_Censors_Forbidden_Words(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	alice := uuid.New()
	session, _ := testSession(t, alice)

	moderator, err := moderation.NewModerator([]string{"badger"}, '*', slog.Default())
	req.NoError(err)
	session.moderator = &moderator

	chatID, err := session.CreateOrReuseChat(ctx, uuid.New())
	req.NoError(err)
	req.NoError(session.SelectChat(ctx, chatID))

	_, err = session.SendMessage(ctx, domain.Draft{Content: lo.ToPtr("release the badger")})
	req.NoError(err)

	// Then the stored row carries the censored content
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal("release the ******", *messages[0].Content)
}

func TestSession_Failed_Subscribe_Keeps_The_Previous_Selection(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alice := uuid.New()
	gateway := mocks.NewMockGateway(ctrl)
	bus := mocks.NewMockEventBus(ctrl)
	session := NewSession(SessionDeps{
		Gateway:          gateway,
		Bus:              bus,
		Log:              slog.Default(),
		UserID:           alice,
		MaxContentLength: maxContentLength,
	})

	firstChat, secondChat := uuid.New(), uuid.New()
	var feed <-chan event.BusEvent = make(chan event.BusEvent)
	sub := mocks.NewMockSubscription(ctrl)
	sub.EXPECT().Events().Return(feed).AnyTimes()

	// Given a selected chat with one message of history
	history := []domain.Message{{
		ID: uuid.New(), ChatID: firstChat, SenderID: alice,
		CreatedAt: time.Now().UTC(), Status: domain.StatusSent,
	}}
	bus.EXPECT().Subscribe(event.ChatTopic(firstChat)).Return(sub, nil)
	gateway.EXPECT().ListMessages(gomock.Any(), firstChat).Return(history, nil)
	gateway.EXPECT().
		UpdateChatStatuses(gomock.Any(), firstChat, alice, gomock.Any(), domain.StatusDelivered).
		Return(nil, nil)
	req.NoError(session.SelectChat(ctx, firstChat))

	// When the bus rejects the next topic
	bus.EXPECT().Subscribe(event.ChatTopic(secondChat)).Return(nil, fmt.Errorf("bus saturated"))
	err := session.SelectChat(ctx, secondChat)
	req.ErrorContains(err, "subscribing chat topic")

	// Then the first chat stays selected, its feed alive and its cache intact
	messages := session.Messages()
	req.Len(messages, 1)
	req.Equal(firstChat, messages[0].ChatID)
}

func TestSession_Focus_Without_Selection(t *testing.T) {
	req := require.New(t)
	session, _ := testSession(t, uuid.New())
	req.ErrorIs(session.Focus(context.Background()), errors.ErrNoChatSelected)
}

func TestSession_Stale_History_Fetch_Is_Discarded(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alice := uuid.New()
	gateway := mocks.NewMockGateway(ctrl)
	log := slog.Default()
	bus := runtime.NewBus(log, 64)
	session := NewSession(SessionDeps{
		Gateway:          gateway,
		Bus:              bus,
		Log:              log,
		UserID:           alice,
		MaxContentLength: maxContentLength,
	})

	slowChat, fastChat := uuid.New(), uuid.New()
	started := make(chan struct{})
	release := make(chan struct{})

	// Given a history fetch for the first chat that hangs mid-flight
	slowHistory := []domain.Message{{
		ID: uuid.New(), ChatID: slowChat, SenderID: alice,
		CreatedAt: time.Now().UTC(), Status: domain.StatusSent,
	}}
	gateway.EXPECT().
		ListMessages(gomock.Any(), slowChat).
		DoAndReturn(func(context.Context, uuid.UUID) ([]domain.Message, error) {
			close(started)
			<-release
			return slowHistory, nil
		})
	gateway.EXPECT().ListMessages(gomock.Any(), fastChat).Return(nil, nil)
	gateway.EXPECT().
		UpdateChatStatuses(gomock.Any(), gomock.Any(), alice, gomock.Any(), domain.StatusDelivered).
		Return(nil, nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- session.SelectChat(ctx, slowChat) }()
	<-started

	// When a second selection lands while the first is still loading
	req.NoError(session.SelectChat(ctx, fastChat))

	// Then the late result is thrown away instead of filling the new cache
	close(release)
	req.NoError(<-done)
	req.Empty(session.Messages())
}
