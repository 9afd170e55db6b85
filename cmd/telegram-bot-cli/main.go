package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Samehadar/telegram-bot/internal/logging"
	"github.com/Samehadar/telegram-bot/internal/telegram"
)

func main() {
	logging.Configure(logging.Options{Level: os.Getenv("TELEGRAM_LOG_LEVEL")})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Results are written to out as JSON.
func newRootCommand(out io.Writer) *cobra.Command {
	var endpoint string

	root := &cobra.Command{
		Use:   "telegram-bot-cli",
		Short: "Call the Telegram Bot API",
		Long: `telegram-bot-cli calls Bot API methods with the token from TELEGRAM_BOT_TOKEN.

Environment:
  TELEGRAM_BOT_TOKEN      bot token (required)
  TELEGRAM_API_ENDPOINT   API endpoint (default https://api.telegram.org)
  TELEGRAM_LOG_LEVEL      debug|info|warn|error`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&endpoint, "endpoint", os.Getenv("TELEGRAM_API_ENDPOINT"), "Bot API endpoint")

	api := func() (*telegram.Api, error) {
		var opts []telegram.Option
		if endpoint != "" {
			opts = append(opts, telegram.WithEndpoint(endpoint))
		}
		return telegram.FromEnv("TELEGRAM_BOT_TOKEN", opts...)
	}
	emit := func(v any) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "getme",
			Short: "Show the bot's own user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := api()
				if err != nil {
					return err
				}
				me, err := a.GetMe(cmd.Context())
				if err != nil {
					return err
				}
				return emit(me)
			},
		},
		newSendCommand(api, emit),
		newForwardCommand(api, emit),
		newLocationCommand(api, emit),
		newActionCommand(api, emit),
		newPhotosCommand(api, emit),
		newUpdatesCommand(api, emit),
		newWebhookCommand(api, emit),
		newListenCommand(api, out),
	)
	return root
}

type apiFunc func() (*telegram.Api, error)

type printFunc func(any) error

func newSendCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a text message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat, _ := cmd.Flags().GetInt64("chat")
			text, _ := cmd.Flags().GetString("text")
			mode, _ := cmd.Flags().GetString("parse-mode")
			noPreview, _ := cmd.Flags().GetBool("no-preview")

			opts := &telegram.SendMessageOptions{ParseMode: telegram.ParseMode(mode)}
			if cmd.Flags().Changed("no-preview") {
				opts.DisableWebPagePreview = &noPreview
			}
			if cmd.Flags().Changed("reply-to") {
				id, _ := cmd.Flags().GetInt64("reply-to")
				opts.ReplyToMessageID = &id
			}

			a, err := api()
			if err != nil {
				return err
			}
			msg, err := a.SendMessage(cmd.Context(), chat, text, opts)
			if err != nil {
				return err
			}
			return emit(msg)
		},
	}
	cmd.Flags().Int64("chat", 0, "Target chat id")
	cmd.Flags().String("text", "", "Message text")
	cmd.Flags().String("parse-mode", "", "Markdown or HTML")
	cmd.Flags().Bool("no-preview", false, "Disable link previews")
	cmd.Flags().Int64("reply-to", 0, "Message id to reply to")
	cmd.MarkFlagRequired("chat")
	cmd.MarkFlagRequired("text")
	return cmd
}

func newForwardCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Forward a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat, _ := cmd.Flags().GetInt64("chat")
			from, _ := cmd.Flags().GetInt64("from-chat")
			id, _ := cmd.Flags().GetInt64("message")

			a, err := api()
			if err != nil {
				return err
			}
			msg, err := a.ForwardMessage(cmd.Context(), chat, from, id)
			if err != nil {
				return err
			}
			return emit(msg)
		},
	}
	cmd.Flags().Int64("chat", 0, "Target chat id")
	cmd.Flags().Int64("from-chat", 0, "Source chat id")
	cmd.Flags().Int64("message", 0, "Message id in the source chat")
	cmd.MarkFlagRequired("chat")
	cmd.MarkFlagRequired("from-chat")
	cmd.MarkFlagRequired("message")
	return cmd
}

func newLocationCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "location",
		Short: "Send a map point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat, _ := cmd.Flags().GetInt64("chat")
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")

			a, err := api()
			if err != nil {
				return err
			}
			msg, err := a.SendLocation(cmd.Context(), chat, lat, lon, nil)
			if err != nil {
				return err
			}
			return emit(msg)
		},
	}
	cmd.Flags().Int64("chat", 0, "Target chat id")
	cmd.Flags().Float64("lat", 0, "Latitude")
	cmd.Flags().Float64("lon", 0, "Longitude")
	cmd.MarkFlagRequired("chat")
	return cmd
}

func newActionCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Show a chat action such as typing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chat, _ := cmd.Flags().GetInt64("chat")
			action, _ := cmd.Flags().GetString("action")

			a, err := api()
			if err != nil {
				return err
			}
			ok, err := a.SendChatAction(cmd.Context(), chat, telegram.ChatAction(action))
			if err != nil {
				return err
			}
			return emit(ok)
		},
	}
	cmd.Flags().Int64("chat", 0, "Target chat id")
	cmd.Flags().String("action", string(telegram.ActionTyping), "typing|upload_photo|record_video|upload_video|record_audio|upload_audio|upload_document|find_location")
	cmd.MarkFlagRequired("chat")
	return cmd
}

func newPhotosCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "List a user's profile photos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetInt64("user")
			offset := optionalInt64(cmd, "offset")
			limit := optionalInt64(cmd, "limit")

			a, err := api()
			if err != nil {
				return err
			}
			photos, err := a.GetUserProfilePhotos(cmd.Context(), user, offset, limit)
			if err != nil {
				return err
			}
			return emit(photos)
		},
	}
	cmd.Flags().Int64("user", 0, "User id")
	cmd.Flags().Int64("offset", 0, "Number of photos to skip")
	cmd.Flags().Int64("limit", 0, "Maximum number of photos (1-100)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newUpdatesCommand(api apiFunc, emit printFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "updates",
		Short: "Call getUpdates once without tracking the offset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := api()
			if err != nil {
				return err
			}
			updates, err := a.GetUpdates(cmd.Context(),
				optionalInt64(cmd, "offset"),
				optionalInt64(cmd, "limit"),
				optionalInt64(cmd, "timeout"))
			if err != nil {
				return err
			}
			return emit(updates)
		},
	}
	cmd.Flags().Int64("offset", 0, "First update id to return")
	cmd.Flags().Int64("limit", 0, "Maximum number of updates (1-100)")
	cmd.Flags().Int64("timeout", 0, "Long poll timeout in seconds")
	return cmd
}

func newWebhookCommand(api apiFunc, emit printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook [url]",
		Short: "Set the webhook URL; without an argument the webhook is removed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string
			if len(args) == 1 {
				url = args[0]
			}
			a, err := api()
			if err != nil {
				return err
			}
			ok, err := a.SetWebhook(cmd.Context(), url)
			if err != nil {
				return err
			}
			return emit(ok)
		},
	}
}

// newListenCommand runs an echo bot that greets every sender by first name.
func newListenCommand(api apiFunc, out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Greet every sender until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			maxUpdates, _ := cmd.Flags().GetInt("max")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			offset, _ := cmd.Flags().GetInt64("offset")

			a, err := api()
			if err != nil {
				return err
			}
			listener := a.Listener(telegram.LongPoll{Timeout: timeout}, telegram.WithOffset(offset))

			seen := 0
			err = listener.Listen(cmd.Context(), telegram.HandlerFunc(func(ctx context.Context, u telegram.Update) (telegram.Action, error) {
				if u.Message != nil && u.Message.From != nil {
					reply := "Hi, " + u.Message.From.FirstName + "!"
					if _, err := a.SendMessage(ctx, u.Message.Chat.ID, reply, nil); err != nil {
						return telegram.Continue, err
					}
					fmt.Fprintf(out, "%d: greeted %s in chat %d\n", u.UpdateID, u.Message.From.FirstName, u.Message.Chat.ID)
				}
				seen++
				if maxUpdates > 0 && seen >= maxUpdates {
					return telegram.Stop, nil
				}
				return telegram.Continue, nil
			}))
			fmt.Fprintf(out, "next offset: %d\n", listener.Confirmed())
			// Interrupted is a normal end; a failed last acknowledgment is not.
			if err != nil && err == cmd.Context().Err() {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Int("max", 0, "Stop after this many updates (0 = run until interrupted)")
	cmd.Flags().Duration("timeout", telegram.DefaultPollTimeout, "Long poll timeout")
	cmd.Flags().Int64("offset", 0, "Offset to start from")
	return cmd
}

// optionalInt64 returns the flag's value if it was set on the command line.
func optionalInt64(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}
