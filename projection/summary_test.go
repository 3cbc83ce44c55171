package projection

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"duochat/domain"
	"duochat/domain/event"
	"duochat/mocks"
)

func TestChatListAggregator_Sorts_By_Last_Activity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	viewer := uuid.New()
	base := time.Now().UTC()
	c1 := domain.Chat{ID: uuid.New(), CreatedAt: base}
	c2 := domain.Chat{ID: uuid.New(), CreatedAt: base}
	lastC1 := domain.Message{ID: uuid.New(), ChatID: c1.ID, SenderID: uuid.New(), CreatedAt: base.Add(10 * time.Minute), Status: domain.StatusSent}
	lastC2 := domain.Message{ID: uuid.New(), ChatID: c2.ID, SenderID: uuid.New(), CreatedAt: base.Add(5 * time.Minute), Status: domain.StatusSent}

	gateway.EXPECT().ListParticipantChats(ctx, viewer).Return([]uuid.UUID{c1.ID, c2.ID}, nil)
	gateway.EXPECT().GetChats(ctx, []uuid.UUID{c1.ID, c2.ID}).Return([]domain.Chat{c1, c2}, nil)
	gateway.EXPECT().GetParticipants(ctx, gomock.Any()).Return([]uuid.UUID{viewer}, nil).Times(2)
	gateway.EXPECT().GetProfile(ctx, viewer).Return(domain.Profile{ID: viewer, Name: "Me"}, nil).Times(2)
	gateway.EXPECT().GetLatestMessage(ctx, c1.ID).Return(&lastC1, nil)
	gateway.EXPECT().GetLatestMessage(ctx, c2.ID).Return(&lastC2, nil)
	gateway.EXPECT().CountMessages(ctx, gomock.Any(), viewer, gomock.Any()).Return(1, nil).Times(2)

	aggregator := NewChatListAggregator(gateway, slog.Default(), viewer)

	// When the full list is built
	req.NoError(aggregator.BuildAll(ctx))

	// Then the chat with the most recent message comes first
	summaries := aggregator.Summaries()
	req.Len(summaries, 2)
	req.Equal(c1.ID, summaries[0].ChatID)
	req.Equal(c2.ID, summaries[1].ChatID)
}

func TestChatListAggregator_Chat_Without_Messages_Sorts_On_Creation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	viewer := uuid.New()
	base := time.Now().UTC()
	old := domain.Chat{ID: uuid.New(), CreatedAt: base.Add(-time.Hour)}
	fresh := domain.Chat{ID: uuid.New(), CreatedAt: base}

	gateway.EXPECT().ListParticipantChats(ctx, viewer).Return([]uuid.UUID{old.ID, fresh.ID}, nil)
	gateway.EXPECT().GetChats(ctx, gomock.Any()).Return([]domain.Chat{old, fresh}, nil)
	gateway.EXPECT().GetParticipants(ctx, gomock.Any()).Return(nil, nil).Times(2)
	gateway.EXPECT().GetLatestMessage(ctx, gomock.Any()).Return(nil, nil).Times(2)
	gateway.EXPECT().CountMessages(ctx, gomock.Any(), viewer, gomock.Any()).Return(0, nil).Times(2)

	aggregator := NewChatListAggregator(gateway, slog.Default(), viewer)
	req.NoError(aggregator.BuildAll(ctx))

	summaries := aggregator.Summaries()
	req.Equal(fresh.ID, summaries[0].ChatID)
	req.Equal(old.ID, summaries[1].ChatID)
}

func TestChatListAggregator_Degrades_Failed_Chat_To_Placeholder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	viewer := uuid.New()
	chat := domain.Chat{ID: uuid.New(), CreatedAt: time.Now().UTC()}

	gateway.EXPECT().ListParticipantChats(ctx, viewer).Return([]uuid.UUID{chat.ID}, nil)
	gateway.EXPECT().GetChats(ctx, gomock.Any()).Return([]domain.Chat{chat}, nil)
	// Given the participant lookup fails for this chat
	gateway.EXPECT().GetParticipants(ctx, chat.ID).Return(nil, fmt.Errorf("gateway down"))

	aggregator := NewChatListAggregator(gateway, slog.Default(), viewer)

	// When the list is built
	req.NoError(aggregator.BuildAll(ctx))

	// Then the chat degrades instead of sinking the whole list
	summaries := aggregator.Summaries()
	req.Len(summaries, 1)
	req.Empty(summaries[0].Participants)
	req.Zero(summaries[0].Unread)
	req.Nil(summaries[0].LastMessage)
}

func TestChatListAggregator_Recomputes_Unread_On_Status_Event(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	viewer := uuid.New()
	peer := uuid.New()
	chat := domain.Chat{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	last := domain.Message{ID: uuid.New(), ChatID: chat.ID, SenderID: peer, CreatedAt: time.Now().UTC(), Status: domain.StatusDelivered}

	gateway.EXPECT().ListParticipantChats(ctx, viewer).Return([]uuid.UUID{chat.ID}, nil)
	gateway.EXPECT().GetChats(ctx, gomock.Any()).Return([]domain.Chat{chat}, nil)
	gateway.EXPECT().GetParticipants(ctx, chat.ID).Return([]uuid.UUID{viewer, peer}, nil)
	gateway.EXPECT().GetProfile(ctx, gomock.Any()).Return(domain.Profile{}, nil).Times(2)
	gateway.EXPECT().GetLatestMessage(ctx, chat.ID).Return(&last, nil)
	gateway.EXPECT().CountMessages(ctx, chat.ID, viewer, []domain.Status{domain.StatusSent, domain.StatusDelivered}).Return(3, nil)

	aggregator := NewChatListAggregator(gateway, slog.Default(), viewer)
	req.NoError(aggregator.BuildAll(ctx))
	req.Equal(3, aggregator.Summaries()[0].Unread)

	// When a read transition lands on every unread message
	read := last
	read.Status = domain.StatusRead
	gateway.EXPECT().GetLatestMessage(ctx, chat.ID).Return(&read, nil)
	gateway.EXPECT().CountMessages(ctx, chat.ID, viewer, gomock.Any()).Return(0, nil)
	req.NoError(aggregator.Consume(ctx, event.MessageUpdated{Message: read}))

	// Then the unread count is recomputed to zero
	req.Zero(aggregator.Summaries()[0].Unread)
}

func TestChatListAggregator_Refresh_Resolves_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	viewer := uuid.New()
	peer := uuid.New()
	chat := domain.Chat{ID: uuid.New(), CreatedAt: time.Now().UTC(), Participants: [2]uuid.UUID{viewer, peer}}

	// Given an aggregator that has never seen this chat
	aggregator := NewChatListAggregator(gateway, slog.Default(), viewer)

	gateway.EXPECT().GetChats(ctx, []uuid.UUID{chat.ID}).Return([]domain.Chat{chat}, nil)
	gateway.EXPECT().GetParticipants(ctx, chat.ID).Return(nil, nil)
	gateway.EXPECT().GetLatestMessage(ctx, chat.ID).Return(nil, nil)
	gateway.EXPECT().CountMessages(ctx, chat.ID, viewer, gomock.Any()).Return(0, nil)

	// When the first event of a brand new chat arrives
	aggregator.Refresh(ctx, chat.ID)

	// Then a summary appears
	req.Len(aggregator.Summaries(), 1)
}

func TestChatListAggregator_Ignores_Chats_Of_Other_Users(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)

	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()
	foreign := domain.Chat{ID: uuid.New(), CreatedAt: time.Now().UTC(), Participants: [2]uuid.UUID{bob, carol}}

	// Given Alice's aggregator and a chat held between Bob and Carol
	aggregator := NewChatListAggregator(gateway, slog.Default(), alice)
	gateway.EXPECT().GetChats(ctx, []uuid.UUID{foreign.ID}).Return([]domain.Chat{foreign}, nil)

	// When an event of that chat reaches Alice through the table-wide feed
	inserted := domain.Message{ID: uuid.New(), ChatID: foreign.ID, SenderID: bob, CreatedAt: time.Now().UTC(), Status: domain.StatusSent}
	req.NoError(aggregator.Consume(ctx, event.MessageInserted{Message: inserted}))

	// Then the foreign chat never enters her list
	req.Empty(aggregator.Summaries())
}
