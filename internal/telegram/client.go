// Package telegram is a minimal Telegram Bot API client for the two
// calls the Pipeline needs: sendMediaGroup (photo preview album) and
// sendDocument (per-item HD upload, with an optional thumbnail). There
// is no Telegram SDK anywhere in the example corpus, so this is built
// directly on net/http and mime/multipart in the teacher's HTTP-client
// style (SPEC_FULL.md 4.8, 6).
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nsinhame/wallhaven-engine/internal/types"
)

const sendTimeout = 120 * time.Second

// Client talks to a single Telegram bot's API surface.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient builds a Client for the given bot token. botAPIBase defaults
// to the public Telegram Bot API host when empty, allowing tests to
// point at a local server.
func NewClient(token, botAPIBase string) *Client {
	if botAPIBase == "" {
		botAPIBase = "https://api.telegram.org"
	}
	return &Client{
		http:    &http.Client{Timeout: sendTimeout},
		baseURL: fmt.Sprintf("%s/bot%s", botAPIBase, token),
	}
}

// MediaItem is one file to upload, either for the preview album or as
// an individual HD document.
type MediaItem struct {
	WallpaperID string
	Path        string
	Thumbnail   []byte // optional, only used by SendDocument
}

// Result carries the outcome Telegram reports for a single sent message.
type Result struct {
	MessageID int64
	Date      int64
}

type apiEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Desc   string          `json:"description"`
}

type messageResult struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}

// SendMediaGroup posts the preview album (SPEC_FULL.md 4.8 step 5).
// Telegram returns one message per item in the group, in request order
// (SPEC_FULL.md 5, "posting order across items in a batch is preserved").
func (c *Client) SendMediaGroup(ctx context.Context, groupID int64, items []MediaItem) ([]Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	type mediaEntry struct {
		Type  string `json:"type"`
		Media string `json:"media"`
	}
	entries := make([]mediaEntry, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("photo%d", i)
		entries = append(entries, mediaEntry{Type: "photo", Media: "attach://" + field})
		if err := attachFile(w, field, item.Path); err != nil {
			return nil, &types.DeliveryFailureError{WallpaperID: item.WallpaperID, Stage: "preview", Err: err}
		}
	}

	mediaJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode media group: %w", err)
	}
	if err := w.WriteField("chat_id", strconv.FormatInt(groupID, 10)); err != nil {
		return nil, err
	}
	if err := w.WriteField("media", string(mediaJSON)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var raw []messageResult
	if err := c.post(ctx, "sendMediaGroup", w.FormDataContentType(), &buf, &raw); err != nil {
		return nil, err
	}

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{MessageID: r.MessageID, Date: r.Date}
	}
	return results, nil
}

// SendDocument uploads one HD file, with its thumbnail attached if
// present (SPEC_FULL.md 4.8 step 7).
func (c *Client) SendDocument(ctx context.Context, groupID int64, item MediaItem) (Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", strconv.FormatInt(groupID, 10)); err != nil {
		return Result{}, err
	}
	if err := attachFile(w, "document", item.Path); err != nil {
		return Result{}, &types.DeliveryFailureError{WallpaperID: item.WallpaperID, Stage: "hd", Err: err}
	}
	if len(item.Thumbnail) > 0 {
		if err := attachBytes(w, "thumbnail", "thumbnail.jpg", item.Thumbnail); err != nil {
			return Result{}, &types.DeliveryFailureError{WallpaperID: item.WallpaperID, Stage: "hd", Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return Result{}, err
	}

	var raw messageResult
	if err := c.post(ctx, "sendDocument", w.FormDataContentType(), &buf, &raw); err != nil {
		return Result{}, &types.DeliveryFailureError{WallpaperID: item.WallpaperID, Stage: "hd", Err: err}
	}

	return Result{MessageID: raw.MessageID, Date: raw.Date}, nil
}

func (c *Client) post(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s rejected: %s", method, envelope.Desc)
	}
	if len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func attachFile(w *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func attachBytes(w *multipart.Writer, field, filename string, data []byte) error {
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}
