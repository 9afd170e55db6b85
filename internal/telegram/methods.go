package telegram

import (
	"context"
	"time"
)

// GetMe returns the bot's own user. Useful to verify the token.
func (a *Api) GetMe(ctx context.Context) (*User, error) {
	return send[*User](ctx, a.transport, "getMe", nil, 0)
}

// SendMessageOptions holds the optional sendMessage fields.
type SendMessageOptions struct {
	ParseMode             ParseMode
	DisableWebPagePreview *bool
	ReplyToMessageID      *int64
	ReplyMarkup           ReplyMarkup
}

// SendMessage sends text to chatID. opts may be nil.
func (a *Api) SendMessage(ctx context.Context, chatID int64, text string, opts *SendMessageOptions) (*Message, error) {
	p := newParams()
	p.addInt("chat_id", chatID)
	p.add("text", text)
	if opts != nil {
		p.addStringOpt("parse_mode", string(opts.ParseMode))
		p.addBoolOpt("disable_web_page_preview", opts.DisableWebPagePreview)
		p.addIntOpt("reply_to_message_id", opts.ReplyToMessageID)
		if err := p.addJSONOpt("reply_markup", replyMarkupValue(opts.ReplyMarkup)); err != nil {
			return nil, err
		}
	}
	return send[*Message](ctx, a.transport, "sendMessage", p, 0)
}

// ForwardMessage forwards messageID from fromChatID to chatID.
func (a *Api) ForwardMessage(ctx context.Context, chatID, fromChatID, messageID int64) (*Message, error) {
	p := newParams()
	p.addInt("chat_id", chatID)
	p.addInt("from_chat_id", fromChatID)
	p.addInt("message_id", messageID)
	return send[*Message](ctx, a.transport, "forwardMessage", p, 0)
}

// SendLocationOptions holds the optional sendLocation fields.
type SendLocationOptions struct {
	ReplyToMessageID *int64
	ReplyMarkup      ReplyMarkup
}

// SendLocation sends a map point to chatID. opts may be nil.
func (a *Api) SendLocation(ctx context.Context, chatID int64, latitude, longitude float64, opts *SendLocationOptions) (*Message, error) {
	p := newParams()
	p.addInt("chat_id", chatID)
	p.addFloat("latitude", latitude)
	p.addFloat("longitude", longitude)
	if opts != nil {
		p.addIntOpt("reply_to_message_id", opts.ReplyToMessageID)
		if err := p.addJSONOpt("reply_markup", replyMarkupValue(opts.ReplyMarkup)); err != nil {
			return nil, err
		}
	}
	return send[*Message](ctx, a.transport, "sendLocation", p, 0)
}

// SendChatAction shows action in chatID for a few seconds.
func (a *Api) SendChatAction(ctx context.Context, chatID int64, action ChatAction) (bool, error) {
	p := newParams()
	p.addInt("chat_id", chatID)
	p.add("action", string(action))
	return send[bool](ctx, a.transport, "sendChatAction", p, 0)
}

// GetUserProfilePhotos lists the profile pictures of userID. offset and limit
// may be nil.
func (a *Api) GetUserProfilePhotos(ctx context.Context, userID int64, offset, limit *int64) (*UserProfilePhotos, error) {
	p := newParams()
	p.addInt("user_id", userID)
	p.addIntOpt("offset", offset)
	p.addIntOpt("limit", limit)
	return send[*UserProfilePhotos](ctx, a.transport, "getUserProfilePhotos", p, 0)
}

// GetUpdates is the raw getUpdates call. It does not track the offset; use a
// Listener for that. timeout is in seconds.
func (a *Api) GetUpdates(ctx context.Context, offset, limit, timeout *int64) ([]Update, error) {
	p := newParams()
	p.addIntOpt("offset", offset)
	p.addIntOpt("limit", limit)
	p.addIntOpt("timeout", timeout)
	var wait time.Duration
	if timeout != nil {
		wait = time.Duration(*timeout) * time.Second
	}
	return send[[]Update](ctx, a.transport, "getUpdates", p, wait)
}

// SetWebhook is the raw setWebhook call. An empty url removes the webhook.
// This package does not receive updates through webhooks; while a webhook is
// set, getUpdates fails with ErrConflict.
func (a *Api) SetWebhook(ctx context.Context, url string) (bool, error) {
	p := newParams()
	p.add("url", url)
	return send[bool](ctx, a.transport, "setWebhook", p, 0)
}

// GetFile prepares fileID for download. See FileURL.
func (a *Api) GetFile(ctx context.Context, fileID string) (*File, error) {
	p := newParams()
	p.add("file_id", fileID)
	return send[*File](ctx, a.transport, "getFile", p, 0)
}

// replyMarkupValue keeps a nil ReplyMarkup from reaching the encoder as a
// non-nil interface.
func replyMarkupValue(m ReplyMarkup) any {
	if m == nil {
		return nil
	}
	return m
}
