// Package delivery posts finished articles to the messaging channel.
package delivery

import (
	"context"
	"log/slog"
	"strings"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/telegram"
)

// Sender posts one photo with a caption. *telegram.Client implements it.
type Sender interface {
	SendPhoto(ctx context.Context, chatID, photoURL, caption, parseMode string) error
}

type Options struct {
	ChatID          string
	CaptionMaxRunes int
	RequiredCharset string // at least one rune of it must appear in title+content, empty disables the check
}

// Result summarises one batch.
type Result struct {
	Sent      int
	Skipped   int
	Failed    int
	Delivered []article.Article
}

type Deliverer struct {
	sender Sender
	opts   Options
	logger *slog.Logger
}

func NewDeliverer(sender Sender, opts Options, logger *slog.Logger) *Deliverer {
	if opts.CaptionMaxRunes <= 0 {
		opts.CaptionMaxRunes = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{sender: sender, opts: opts, logger: logger}
}

// Deliver sends every deliverable article in order. Send failures are
// logged and counted; the rest of the batch still goes out.
func (d *Deliverer) Deliver(ctx context.Context, articles []article.Article) Result {
	var res Result
	for _, a := range articles {
		if reason := d.skipReason(a); reason != "" {
			res.Skipped++
			d.logger.Info("Skipping article", "link", a.Link, "reason", reason)
			continue
		}

		caption := BuildCaption(a.Title, a.Content, d.opts.CaptionMaxRunes)
		if err := d.sender.SendPhoto(ctx, d.opts.ChatID, a.Image, caption, telegram.ParseMarkdownV2); err != nil {
			res.Failed++
			d.logger.Error("Failed to deliver article", "link", a.Link, "id", a.ID, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		res.Sent++
		res.Delivered = append(res.Delivered, a)
		d.logger.Info("Delivered article", "link", a.Link, "id", a.ID)
	}
	return res
}

func (d *Deliverer) skipReason(a article.Article) string {
	switch {
	case article.Blank(a.Image):
		return "no image"
	case article.Blank(a.Title):
		return "no title"
	case article.Blank(a.Content):
		return "no content"
	case d.opts.RequiredCharset != "" && !strings.ContainsAny(a.Title+a.Content, d.opts.RequiredCharset):
		return "not in target language"
	}
	return ""
}
