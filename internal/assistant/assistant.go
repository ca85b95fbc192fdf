// Package assistant drafts product listings from a short idea using a
// generative language model.
package assistant

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("assistant is not configured")

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-1.5-flash"

	prompt = `Draft a product listing for an online shop from this idea: %q.
Respond with a single JSON object and nothing else, using exactly these keys:
{"name": string, "price": number in USD, "category": string, "subcategory": string, "description": string under 200 characters}`
)

// Draft is a generated product listing suggestion.
type Draft struct {
	Name        string
	Price       decimal.Decimal
	Category    string
	Subcategory string
	Description string
}

// Drafter calls the model API. A Drafter with an empty key is valid and
// fails every call with ErrDisabled.
type Drafter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

// Option configures a Drafter.
type Option func(*Drafter)

// WithBaseURL overrides the API endpoint, used by tests.
func WithBaseURL(u string) Option {
	return func(d *Drafter) { d.baseURL = u }
}

// New creates a Drafter.
func New(key string, opts ...Option) *Drafter {
	d := &Drafter{
		key:     key,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Draft asks the model for a product listing built from the idea.
func (d *Drafter) Draft(ctx context.Context, idea string) (*Draft, error) {
	if d.key == "" {
		return nil, ErrDisabled
	}

	text, err := d.generate(ctx, fmt.Sprintf(prompt, idea))
	if err != nil {
		return nil, err
	}
	return parseDraft(text)
}

func (d *Drafter) generate(ctx context.Context, input string) (string, error) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("contents")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("parts")
	e.ArrStart()
	e.ObjStart()
	e.FieldStart("text")
	e.Str(input)
	e.ObjEnd()
	e.ArrEnd()
	e.ObjEnd()
	e.ArrEnd()
	e.ObjEnd()

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", d.baseURL, d.model, d.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(e.Bytes()))
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "call model")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("model api: status %d", resp.StatusCode)
	}

	return extractText(body)
}

// extractText pulls the first candidate's text out of the response.
func extractText(body []byte) (string, error) {
	var text string

	dec := jx.DecodeBytes(body)
	err := dec.Obj(func(dec *jx.Decoder, key string) error {
		if key != "candidates" {
			return dec.Skip()
		}
		return dec.Arr(func(dec *jx.Decoder) error {
			return dec.Obj(func(dec *jx.Decoder, key string) error {
				if key != "content" {
					return dec.Skip()
				}
				return dec.Obj(func(dec *jx.Decoder, key string) error {
					if key != "parts" {
						return dec.Skip()
					}
					return dec.Arr(func(dec *jx.Decoder) error {
						return dec.Obj(func(dec *jx.Decoder, key string) error {
							if key != "text" {
								return dec.Skip()
							}
							v, err := dec.Str()
							if text == "" {
								text = v
							}
							return err
						})
					})
				})
			})
		})
	})
	if err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}

// parseDraft decodes the JSON object the model was asked to produce.
// Markdown code fences around it are tolerated.
func parseDraft(text string) (*Draft, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var draft Draft
	dec := jx.DecodeStr(text)
	err := dec.Obj(func(dec *jx.Decoder, key string) error {
		switch key {
		case "name":
			v, err := dec.Str()
			draft.Name = v
			return err
		case "price":
			raw, err := dec.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(raw.String())
			if err != nil {
				return err
			}
			draft.Price = price
			return nil
		case "category":
			v, err := dec.Str()
			draft.Category = v
			return err
		case "subcategory":
			v, err := dec.Str()
			draft.Subcategory = v
			return err
		case "description":
			v, err := dec.Str()
			draft.Description = v
			return err
		default:
			return dec.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse draft")
	}
	if draft.Name == "" {
		return nil, errors.New("draft is missing a name")
	}
	return &draft, nil
}
