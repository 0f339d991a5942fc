package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yk2estrella/leitobot3.0/folders"
	"github.com/yk2estrella/leitobot3.0/messaging"
)

// Handlers executes classified commands. Send failures are logged and
// dropped; the one hard failure is a folder write error, which suppresses
// the acknowledgement so memory and disk never silently diverge.
type Handlers struct {
	logger *slog.Logger
	router *Router
	store  *folders.Store
	texts  Texts
}

func NewHandlers(logger *slog.Logger, router *Router, store *folders.Store, texts Texts) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{logger: logger, router: router, store: store, texts: texts}
}

func (h *Handlers) HandleMessage(ctx context.Context, m messaging.Messenger, msg messaging.Message) {
	if msg.FromSelf || strings.TrimSpace(msg.Text) == "" {
		return
	}
	inv, ok := h.router.Classify(msg)
	if !ok {
		return
	}
	h.logger.Info("command_matched",
		"kind", string(inv.Kind),
		"conversation", msg.Conversation,
		"sender", msg.Sender,
		"is_group", msg.IsGroup,
	)

	switch inv.Kind {
	case KindGreet:
		h.reply(ctx, m, msg.Conversation, h.texts.Greeting)
	case KindHelp:
		h.reply(ctx, m, msg.Conversation, h.texts.Help)
	case KindTagAll:
		h.handleTagAll(ctx, m, msg, inv)
	case KindReplaceFolder:
		h.handleReplaceFolder(ctx, m, msg, inv)
	case KindShowFolder:
		h.handleShowFolder(ctx, m, msg, inv)
	case KindSearchFolders:
		h.handleSearchFolders(ctx, m, msg, inv)
	case KindCloseGroup:
		h.handleGroupSetting(ctx, m, msg, true)
	case KindOpenGroup:
		h.handleGroupSetting(ctx, m, msg, false)
	case KindBan:
		h.handleBan(ctx, m, msg)
	}
}

func (h *Handlers) handleTagAll(ctx context.Context, m messaging.Messenger, msg messaging.Message, inv Invocation) {
	members, err := m.GroupMembers(ctx, msg.Conversation)
	if err != nil {
		h.logger.Warn("group_members_error", "conversation", msg.Conversation, "error", err.Error())
		return
	}
	if err := m.SendText(ctx, msg.Conversation, inv.Payload, members); err != nil {
		h.logger.Warn("send_error", "kind", string(KindTagAll), "conversation", msg.Conversation, "error", err.Error())
	}
}

func (h *Handlers) handleReplaceFolder(ctx context.Context, m messaging.Messenger, msg messaging.Message, inv Invocation) {
	if err := h.store.Replace(ctx, inv.Slot, inv.Lines); err != nil {
		// No acknowledgement on a failed write: an ack would claim a
		// durability the store does not have.
		h.logger.Error("folder_replace_error", "slot", inv.Slot, "conversation", msg.Conversation, "error", err.Error())
		return
	}
	h.reply(ctx, m, msg.Conversation, fmt.Sprintf(h.texts.FolderUpdated, inv.Slot))
}

func (h *Handlers) handleShowFolder(ctx context.Context, m messaging.Messenger, msg messaging.Message, inv Invocation) {
	lines, err := h.store.Get(inv.Slot)
	if err != nil {
		h.logger.Warn("folder_get_error", "slot", inv.Slot, "error", err.Error())
		return
	}
	if len(lines) == 0 {
		h.reply(ctx, m, msg.Conversation, h.texts.FolderEmpty)
		return
	}
	listing := fmt.Sprintf(h.texts.FolderHeader, inv.Slot) + "\n\n- " + strings.Join(lines, "\n- ")
	h.reply(ctx, m, msg.Conversation, listing)
}

func (h *Handlers) handleSearchFolders(ctx context.Context, m messaging.Messenger, msg messaging.Message, inv Invocation) {
	slot, found := h.store.Search(inv.Payload)
	if !found {
		h.reply(ctx, m, msg.Conversation, h.texts.SearchNotFound)
		return
	}
	h.reply(ctx, m, msg.Conversation, fmt.Sprintf(h.texts.SearchFound, slot))
}

func (h *Handlers) handleGroupSetting(ctx context.Context, m messaging.Messenger, msg messaging.Message, announceOnly bool) {
	if err := m.SetGroupAnnounceOnly(ctx, msg.Conversation, announceOnly); err != nil {
		h.logger.Warn("group_setting_error", "conversation", msg.Conversation, "announce_only", announceOnly, "error", err.Error())
		return
	}
	text := h.texts.GroupOpened
	if announceOnly {
		text = h.texts.GroupClosed
	}
	h.reply(ctx, m, msg.Conversation, text)
}

func (h *Handlers) handleBan(ctx context.Context, m messaging.Messenger, msg messaging.Message) {
	quoted := strings.TrimSpace(msg.QuotedSender)
	if quoted == "" {
		h.reply(ctx, m, msg.Conversation, h.texts.BanUsage)
		return
	}
	if err := m.RemoveParticipant(ctx, msg.Conversation, quoted); err != nil {
		h.logger.Warn("remove_participant_error", "conversation", msg.Conversation, "participant", quoted, "error", err.Error())
		return
	}
	if err := m.SendText(ctx, msg.Conversation, h.texts.Banned, []string{quoted}); err != nil {
		h.logger.Warn("send_error", "kind", string(KindBan), "conversation", msg.Conversation, "error", err.Error())
	}
}

// HandleMembership welcomes every newly added participant. Each welcome is
// independent: a profile fetch or send failure for one participant never
// blocks the others.
func (h *Handlers) HandleMembership(ctx context.Context, m messaging.Messenger, change messaging.MembershipChange) {
	if change.Action != messaging.MembershipAdd {
		return
	}
	for _, participant := range change.Participants {
		imageURL, err := m.ProfileImageURL(ctx, participant)
		if err != nil || strings.TrimSpace(imageURL) == "" {
			if err != nil {
				h.logger.Warn("profile_image_error", "participant", participant, "error", err.Error())
			}
			imageURL = h.texts.DefaultImageURL
		}
		caption := fmt.Sprintf(h.texts.Welcome, mentionToken(participant))
		if err := m.SendImage(ctx, change.Conversation, imageURL, caption, []string{participant}); err != nil {
			h.logger.Warn("welcome_send_error", "conversation", change.Conversation, "participant", participant, "error", err.Error())
		}
	}
}

func (h *Handlers) reply(ctx context.Context, m messaging.Messenger, conversation string, text string) {
	if err := m.SendText(ctx, conversation, text, nil); err != nil {
		h.logger.Warn("send_error", "conversation", conversation, "error", err.Error())
	}
}

// mentionToken renders a participant id the way chat clients display
// mentions: the part before the address domain.
func mentionToken(participant string) string {
	if i := strings.IndexByte(participant, '@'); i >= 0 {
		return participant[:i]
	}
	return participant
}
