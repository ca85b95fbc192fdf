// Package telegram implements chat.Transport over the Telegram Bot API
// using long polling.
package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"shop-bot/internal/chat"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	pollTimeout    = 30 * time.Second
	retryBackoff   = 3 * time.Second
)

var _ chat.Transport = (*Transport)(nil)

// Transport is a long-polling Telegram Bot API client.
type Transport struct {
	token   string
	baseURL string
	client  *http.Client

	// username is resolved lazily from getMe and cached.
	username string
}

// Option configures a Transport.
type Option func(*Transport)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(t *Transport) { t.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// New creates a Transport for the given bot token.
func New(token string, opts ...Option) *Transport {
	t := &Transport{
		token:   token,
		baseURL: defaultBaseURL,
		// Must outlive the long-poll timeout.
		client: &http.Client{Timeout: pollTimeout + 10*time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Updates long-polls getUpdates and streams the results. Transient API
// errors are logged and retried with backoff; the channel closes when ctx
// is cancelled.
func (t *Transport) Updates(ctx context.Context) <-chan chat.Update {
	out := make(chan chat.Update)

	go func() {
		defer close(out)

		var offset int64
		for {
			updates, err := t.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				zctx.From(ctx).Warn("poll updates", zap.Error(err))

				select {
				case <-ctx.Done():
					return
				case <-time.After(retryBackoff):
				}
				continue
			}

			for _, upd := range updates {
				if upd.ID >= offset {
					offset = upd.ID + 1
				}
				if upd.Message == nil && upd.Callback == nil {
					continue
				}

				select {
				case <-ctx.Done():
					return
				case out <- upd:
				}
			}
		}
	}()

	return out
}

// BotName returns the bot's username, resolving it via getMe on first call.
// Referral deep links need it: https://t.me/<username>?start=ref_<code>.
func (t *Transport) BotName(ctx context.Context) (string, error) {
	if t.username != "" {
		return t.username, nil
	}

	result, err := t.call(ctx, "getMe", []byte(`{}`))
	if err != nil {
		return "", err
	}

	var username string
	d := jx.DecodeBytes(result)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key == "username" {
			v, err := d.Str()
			username = v
			return err
		}
		return d.Skip()
	}); err != nil {
		return "", errors.Wrap(err, "decode getMe response")
	}
	if username == "" {
		return "", errors.New("getMe: no username in response")
	}

	t.username = username
	return username, nil
}

// Send delivers a message, attaching the inline keyboard when present.
func (t *Transport) Send(ctx context.Context, msg chat.Outgoing) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("chat_id")
	e.Int64(msg.ChatID)
	e.FieldStart("text")
	e.Str(msg.Text)
	encodeKeyboard(&e, msg.Keyboard)
	e.ObjEnd()

	_, err := t.call(ctx, "sendMessage", e.Bytes())
	return err
}

// Edit replaces the text and keyboard of a previously sent message.
func (t *Transport) Edit(ctx context.Context, chatID, messageID int64, msg chat.Outgoing) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("chat_id")
	e.Int64(chatID)
	e.FieldStart("message_id")
	e.Int64(messageID)
	e.FieldStart("text")
	e.Str(msg.Text)
	encodeKeyboard(&e, msg.Keyboard)
	e.ObjEnd()

	_, err := t.call(ctx, "editMessageText", e.Bytes())
	return err
}

// AnswerCallback acknowledges a button press.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("callback_query_id")
	e.Str(callbackID)
	if text != "" {
		e.FieldStart("text")
		e.Str(text)
	}
	e.ObjEnd()

	_, err := t.call(ctx, "answerCallbackQuery", e.Bytes())
	return err
}

func (t *Transport) getUpdates(ctx context.Context, offset int64) ([]chat.Update, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("offset")
	e.Int64(offset)
	e.FieldStart("timeout")
	e.Int(int(pollTimeout.Seconds()))
	e.FieldStart("allowed_updates")
	e.ArrStart()
	e.Str("message")
	e.Str("callback_query")
	e.ArrEnd()
	e.ObjEnd()

	result, err := t.call(ctx, "getUpdates", e.Bytes())
	if err != nil {
		return nil, err
	}
	return decodeUpdates(result)
}

// call posts a JSON body to an API method and returns the raw "result"
// value from the response envelope.
func (t *Transport) call(ctx context.Context, method string, body []byte) (jx.Raw, error) {
	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s response", method)
	}

	var (
		ok          bool
		description string
		result      jx.Raw
	)
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "ok":
			v, err := d.Bool()
			ok = v
			return err
		case "description":
			v, err := d.Str()
			description = v
			return err
		case "result":
			v, err := d.Raw()
			result = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrapf(err, "decode %s response", method)
	}

	if !ok {
		return nil, errors.Errorf("%s: api error: %s", method, description)
	}
	return result, nil
}

func decodeUpdates(raw jx.Raw) ([]chat.Update, error) {
	var updates []chat.Update

	d := jx.DecodeBytes(raw)
	err := d.Arr(func(d *jx.Decoder) error {
		var upd chat.Update
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "update_id":
				v, err := d.Int64()
				upd.ID = v
				return err
			case "message":
				msg, err := decodeMessage(d)
				upd.Message = msg
				return err
			case "callback_query":
				cb, err := decodeCallback(d)
				upd.Callback = cb
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		updates = append(updates, upd)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode updates")
	}
	return updates, nil
}

func decodeMessage(d *jx.Decoder) (*chat.Message, error) {
	var msg chat.Message
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "text":
			v, err := d.Str()
			msg.Text = v
			return err
		case "chat":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key == "id" {
					v, err := d.Int64()
					msg.ChatID = v
					return err
				}
				return d.Skip()
			})
		case "from":
			return decodeFrom(d, &msg.UserID, &msg.FirstName)
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func decodeCallback(d *jx.Decoder) (*chat.Callback, error) {
	var cb chat.Callback
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			cb.ID = v
			return err
		case "data":
			v, err := d.Str()
			cb.Data = v
			return err
		case "from":
			var firstName string
			return decodeFrom(d, &cb.UserID, &firstName)
		case "message":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "message_id":
					v, err := d.Int64()
					cb.MessageID = v
					return err
				case "chat":
					return d.Obj(func(d *jx.Decoder, key string) error {
						if key == "id" {
							v, err := d.Int64()
							cb.ChatID = v
							return err
						}
						return d.Skip()
					})
				default:
					return d.Skip()
				}
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}
	return &cb, nil
}

func decodeFrom(d *jx.Decoder, id *int64, firstName *string) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Int64()
			*id = v
			return err
		case "first_name":
			v, err := d.Str()
			*firstName = v
			return err
		default:
			return d.Skip()
		}
	})
}

func encodeKeyboard(e *jx.Encoder, rows [][]chat.Button) {
	if len(rows) == 0 {
		return
	}

	e.FieldStart("reply_markup")
	e.ObjStart()
	e.FieldStart("inline_keyboard")
	e.ArrStart()
	for _, row := range rows {
		e.ArrStart()
		for _, btn := range row {
			e.ObjStart()
			e.FieldStart("text")
			e.Str(btn.Text)
			e.FieldStart("callback_data")
			e.Str(btn.Data)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}
