package delivery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/telegram"
)

// ExtractText converts an inbound message of any supported kind into a text
// representation suitable for forwarding to the gateway. It returns the text
// and true on success, or ("", false) if the message should be skipped.
// Unsupported kinds are logged and trigger a reply to the chat.
func ExtractText(ctx context.Context, msg *telegram.Message, api *telegram.Api) (string, bool) {
	if msg == nil {
		return "", false
	}

	switch msg.Kind() {
	case telegram.KindText:
		return msg.Text, true

	case telegram.KindPhoto:
		// Sizes are ordered small to large.
		best := msg.Photo[len(msg.Photo)-1]
		return formatMediaMessage(ctx, "photo", msg.Caption, "", best.FileID, api), true

	case telegram.KindDocument:
		label := msg.Document.FileName
		if label == "" {
			label = msg.Caption
		}
		return formatMediaMessage(ctx, "document", label, msg.Document.MimeType, msg.Document.FileID, api), true

	case telegram.KindAudio:
		label := strings.TrimSpace(msg.Audio.Performer + " " + msg.Audio.Title)
		return formatMediaMessage(ctx, "audio", label, msg.Audio.MimeType, msg.Audio.FileID, api), true

	case telegram.KindSticker:
		return formatMediaMessage(ctx, "sticker", msg.Sticker.Emoji, "", msg.Sticker.FileID, api), true

	case telegram.KindVideo:
		return formatMediaMessage(ctx, "video", msg.Caption, msg.Video.MimeType, msg.Video.FileID, api), true

	case telegram.KindLocation:
		return formatLocationMessage(msg.Location), true

	case telegram.KindContact:
		return formatContactMessage(msg.Contact), true

	default:
		kind := msg.Kind()
		logging.L().Warn("unsupported message kind", "kind", kind, "chat_id", msg.Chat.ID, "message_id", msg.MessageID)
		if api != nil {
			go notifyUnsupported(context.WithoutCancel(ctx), msg.Chat.ID, kind, api)
		}
		return "", false
	}
}

// formatMediaMessage builds a text representation for a media attachment.
// It attempts to resolve the download URL with getFile and includes it if
// available. The result is always a non-empty string.
func formatMediaMessage(ctx context.Context, kind, label, mimeType, fileID string, api *telegram.Api) string {
	var parts []string
	parts = append(parts, "["+kind+"]")
	if label != "" {
		parts = append(parts, label)
	}
	if mimeType != "" {
		parts = append(parts, "("+mimeType+")")
	}

	// Best-effort: files over the download limit have no path.
	if fileID != "" && api != nil {
		f, err := api.GetFile(ctx, fileID)
		if err != nil {
			logging.L().Warn("could not resolve file", "file_id", fileID, "err", err)
		} else if u := api.FileURL(f); u != "" {
			parts = append(parts, u)
		}
	}

	return strings.Join(parts, " ")
}

// formatLocationMessage builds a text representation for a location message.
func formatLocationMessage(loc *telegram.Location) string {
	return fmt.Sprintf("[location] (%.6f, %.6f)", loc.Latitude, loc.Longitude)
}

func formatContactMessage(c *telegram.Contact) string {
	parts := []string{"[contact]"}
	if name := strings.TrimSpace(c.FirstName + " " + c.LastName); name != "" {
		parts = append(parts, name)
	}
	if c.PhoneNumber != "" {
		parts = append(parts, c.PhoneNumber)
	}
	return strings.Join(parts, " ")
}

// notifyUnsupported replies in chatID that the message kind is not yet
// supported.
func notifyUnsupported(ctx context.Context, chatID int64, kind string, api *telegram.Api) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	what := kind + " messages"
	if kind == telegram.KindUnknown {
		what = "this kind of message"
	}
	reply := fmt.Sprintf("Sorry, I can't process %s yet. Please send text instead.", what)
	if _, err := api.SendMessage(ctx, chatID, reply, nil); err != nil {
		logging.L().Warn("failed to send unsupported-kind notice", "chat_id", chatID, "err", err)
	}
}
