package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"duochat/contract"
	"duochat/domain"
	"duochat/domain/event"
)

// unreadStatuses is the set counted against the viewer. Delivered-but-unread
// and actually-unread are deliberately conflated, matching the persisted
// status model: there is no separate read-receipt marker.
var unreadStatuses = []domain.Status{domain.StatusSent, domain.StatusDelivered}

// ChatListAggregator keeps one ChatSummary per chat of the viewer. Unread
// counts are recomputed from the gateway on every observed status change
// instead of maintaining per-message deltas, so a missed event can never
// make the counter drift.
type ChatListAggregator struct {
	gateway   contract.Gateway
	log       *slog.Logger
	viewerID  uuid.UUID
	summaries map[uuid.UUID]domain.ChatSummary
}

func NewChatListAggregator(gateway contract.Gateway, log *slog.Logger, viewerID uuid.UUID) *ChatListAggregator {
	return &ChatListAggregator{
		gateway:   gateway,
		log:       log,
		viewerID:  viewerID,
		summaries: make(map[uuid.UUID]domain.ChatSummary),
	}
}

// BuildAll rebuilds the summary of every chat the viewer participates in.
func (a *ChatListAggregator) BuildAll(ctx context.Context) error {
	chatIDs, err := a.gateway.ListParticipantChats(ctx, a.viewerID)
	if err != nil {
		return fmt.Errorf("listing chats: %w", err)
	}
	chats, err := a.gateway.GetChats(ctx, chatIDs)
	if err != nil {
		return fmt.Errorf("fetching chats: %w", err)
	}

	fresh := make(map[uuid.UUID]domain.ChatSummary, len(chats))
	for _, chat := range chats {
		fresh[chat.ID] = a.buildOne(ctx, chat)
	}
	a.summaries = fresh
	return nil
}

// Refresh recomputes a single chat. Unknown chats are fetched first, so a
// summary appears as soon as the first event of a brand new chat arrives.
// The table-wide feed carries every chat's events, so an unknown chat is
// only adopted when the viewer is actually one of its participants.
func (a *ChatListAggregator) Refresh(ctx context.Context, chatID uuid.UUID) {
	summary, known := a.summaries[chatID]
	if !known {
		chats, err := a.gateway.GetChats(ctx, []uuid.UUID{chatID})
		if err != nil || len(chats) == 0 {
			a.log.Warn("Cannot resolve chat for summary", "chat", chatID, "err", err)
			return
		}
		chat := chats[0]
		if !chat.HasParticipant(a.viewerID) {
			return
		}
		a.log.Debug("New chat discovered", "chat", chat.ID, "peer", chat.Peer(a.viewerID))
		a.summaries[chatID] = a.buildOne(ctx, chat)
		return
	}
	chat := domain.Chat{ID: chatID, CreatedAt: summary.CreatedAt}
	a.summaries[chatID] = a.buildOne(ctx, chat, summary.Participants...)
}

// Consume makes the aggregator a bus event sink: any message event in any
// of the viewer's chats triggers a recompute of that chat only.
func (a *ChatListAggregator) Consume(ctx context.Context, e event.BusEvent) error {
	switch evt := e.(type) {
	case event.MessageInserted:
		a.Refresh(ctx, evt.Message.ChatID)
	case event.MessageUpdated:
		a.Refresh(ctx, evt.Message.ChatID)
	}
	return nil
}

// buildOne assembles the summary for one chat. A detail-fetch failure
// degrades that chat to an empty-participants, zero-unread placeholder
// rather than failing the whole list.
func (a *ChatListAggregator) buildOne(ctx context.Context, chat domain.Chat, knownProfiles ...domain.Profile) domain.ChatSummary {
	summary := domain.ChatSummary{ChatID: chat.ID, CreatedAt: chat.CreatedAt}

	participants := knownProfiles
	if len(participants) == 0 {
		ids, err := a.gateway.GetParticipants(ctx, chat.ID)
		if err != nil {
			a.log.Warn("Degrading chat summary", "chat", chat.ID, "err", err)
			return summary
		}
		participants = lo.Map(ids, func(id uuid.UUID, _ int) domain.Profile {
			return a.profileOrPlaceholder(ctx, id)
		})
	}
	summary.Participants = participants

	last, err := a.gateway.GetLatestMessage(ctx, chat.ID)
	if err != nil {
		a.log.Warn("Degrading chat summary", "chat", chat.ID, "err", err)
		return domain.ChatSummary{ChatID: chat.ID, CreatedAt: chat.CreatedAt}
	}
	summary.LastMessage = last

	unread, err := a.gateway.CountMessages(ctx, chat.ID, a.viewerID, unreadStatuses)
	if err != nil {
		a.log.Warn("Unread count unavailable", "chat", chat.ID, "err", err)
		unread = 0
	}
	summary.Unread = unread
	return summary
}

func (a *ChatListAggregator) profileOrPlaceholder(ctx context.Context, id uuid.UUID) domain.Profile {
	profile, err := a.gateway.GetProfile(ctx, id)
	if err != nil {
		a.log.Warn("Profile lookup failed", "user", id, "err", err)
		return domain.Profile{ID: id, Name: "Unknown User"}
	}
	return profile
}

// Summaries returns the list sorted descending by last activity, most
// recent first. Ties break on chat ID so the order is deterministic.
func (a *ChatListAggregator) Summaries() []domain.ChatSummary {
	out := lo.Values(a.summaries)
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].SortTime(), out[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ChatID.String() < out[j].ChatID.String()
	})
	return out
}
