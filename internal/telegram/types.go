package telegram

import "encoding/json"

// Update is one incoming update. UpdateID is unique and strictly increasing.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat types.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Chat is a private chat, group, supergroup or channel.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Message is a chat message. At most one of the content fields is set.
type Message struct {
	MessageID   int64    `json:"message_id"`
	From        *User    `json:"from,omitempty"`
	Chat        Chat     `json:"chat"`
	Date        int64    `json:"date"`
	ForwardFrom *User    `json:"forward_from,omitempty"`
	ForwardDate int64    `json:"forward_date,omitempty"`
	ReplyTo     *Message `json:"reply_to_message,omitempty"`

	Text     string      `json:"text,omitempty"`
	Audio    *Audio      `json:"audio,omitempty"`
	Document *Document   `json:"document,omitempty"`
	Photo    []PhotoSize `json:"photo,omitempty"`
	Sticker  *Sticker    `json:"sticker,omitempty"`
	Video    *Video      `json:"video,omitempty"`
	Contact  *Contact    `json:"contact,omitempty"`
	Location *Location   `json:"location,omitempty"`
	Caption  string      `json:"caption,omitempty"`
}

// Message kinds reported by Kind.
const (
	KindText     = "text"
	KindAudio    = "audio"
	KindDocument = "document"
	KindPhoto    = "photo"
	KindSticker  = "sticker"
	KindVideo    = "video"
	KindContact  = "contact"
	KindLocation = "location"
	KindUnknown  = "unknown"
)

// Kind names the content variant carried by m.
func (m *Message) Kind() string {
	switch {
	case m.Text != "":
		return KindText
	case m.Audio != nil:
		return KindAudio
	case m.Document != nil:
		return KindDocument
	case len(m.Photo) > 0:
		return KindPhoto
	case m.Sticker != nil:
		return KindSticker
	case m.Video != nil:
		return KindVideo
	case m.Contact != nil:
		return KindContact
	case m.Location != nil:
		return KindLocation
	default:
		return KindUnknown
	}
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Audio struct {
	FileID    string `json:"file_id"`
	Duration  int    `json:"duration"`
	Performer string `json:"performer,omitempty"`
	Title     string `json:"title,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
}

type Document struct {
	FileID   string     `json:"file_id"`
	Thumb    *PhotoSize `json:"thumb,omitempty"`
	FileName string     `json:"file_name,omitempty"`
	MimeType string     `json:"mime_type,omitempty"`
	FileSize int64      `json:"file_size,omitempty"`
}

type Sticker struct {
	FileID   string     `json:"file_id"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Emoji    string     `json:"emoji,omitempty"`
	Thumb    *PhotoSize `json:"thumb,omitempty"`
	FileSize int64      `json:"file_size,omitempty"`
}

type Video struct {
	FileID   string     `json:"file_id"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Duration int        `json:"duration"`
	Thumb    *PhotoSize `json:"thumb,omitempty"`
	MimeType string     `json:"mime_type,omitempty"`
	FileSize int64      `json:"file_size,omitempty"`
}

type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// UserProfilePhotos is the result of getUserProfilePhotos.
type UserProfilePhotos struct {
	TotalCount int           `json:"total_count"`
	Photos     [][]PhotoSize `json:"photos"`
}

// File is the result of getFile. FilePath is valid for at least an hour.
type File struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// ParseMode selects how the API interprets message text formatting.
type ParseMode string

const (
	ParseModeMarkdown ParseMode = "Markdown"
	ParseModeHTML     ParseMode = "HTML"
)

// ChatAction is a status shown to the chat while the bot prepares a reply.
type ChatAction string

const (
	ActionTyping         ChatAction = "typing"
	ActionUploadPhoto    ChatAction = "upload_photo"
	ActionRecordVideo    ChatAction = "record_video"
	ActionUploadVideo    ChatAction = "upload_video"
	ActionRecordAudio    ChatAction = "record_audio"
	ActionUploadAudio    ChatAction = "upload_audio"
	ActionUploadDocument ChatAction = "upload_document"
	ActionFindLocation   ChatAction = "find_location"
)

// ReplyMarkup is one of ReplyKeyboardMarkup, ReplyKeyboardHide or ForceReply.
type ReplyMarkup interface {
	replyMarkup()
}

// KeyboardButton is a single reply keyboard button.
type KeyboardButton struct {
	Text string `json:"text"`
}

type ReplyKeyboardMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
	Selective       bool               `json:"selective,omitempty"`
}

type ReplyKeyboardHide struct {
	Selective bool `json:"selective,omitempty"`
}

// MarshalJSON always emits hide_keyboard=true, which the API requires.
func (h ReplyKeyboardHide) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		HideKeyboard bool `json:"hide_keyboard"`
		Selective    bool `json:"selective,omitempty"`
	}{true, h.Selective})
}

type ForceReply struct {
	Selective bool `json:"selective,omitempty"`
}

// MarshalJSON always emits force_reply=true, which the API requires.
func (f ForceReply) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ForceReply bool `json:"force_reply"`
		Selective  bool `json:"selective,omitempty"`
	}{true, f.Selective})
}

func (ReplyKeyboardMarkup) replyMarkup() {}
func (ReplyKeyboardHide) replyMarkup()   {}
func (ForceReply) replyMarkup()          {}
