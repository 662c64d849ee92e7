package delivery_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/deusflow/newsharvest/internal/article"
	"github.com/deusflow/newsharvest/internal/config"
	"github.com/deusflow/newsharvest/internal/delivery"
	"github.com/deusflow/newsharvest/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	chatID, photo, caption, parseMode string
}

type fakeSender struct {
	sent   []sent
	failOn map[string]error
}

func (s *fakeSender) SendPhoto(_ context.Context, chatID, photo, caption, parseMode string) error {
	if err := s.failOn[photo]; err != nil {
		return err
	}
	s.sent = append(s.sent, sent{chatID, photo, caption, parseMode})
	return nil
}

func TestEscapeMarkdownV2(t *testing.T) {
	assert.Equal(t, `a\.b\-c\!\(d\) \#1 \\ ok`, delivery.EscapeMarkdownV2(`a.b-c!(d) #1 \ ok`))
	assert.Equal(t, "Київ", delivery.EscapeMarkdownV2("Київ"))
}

func TestBuildCaption_Short(t *testing.T) {
	got := delivery.BuildCaption("Новий *закон*", "Сейм ухвалив _закон_. Деталі (див.) нижче!", 1024)
	assert.Equal(t, "*Новий закон*\n\nСейм ухвалив закон\\. Деталі \\(див\\.\\) нижче\\!", got)
}

func TestBuildCaption_TruncatesContentOnly(t *testing.T) {
	title := "Заголовок новини."
	content := strings.Repeat("Речення з крапкою. ", 200)

	for _, limit := range []int{60, 100, 333, 1024} {
		got := delivery.BuildCaption(title, content, limit)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), limit, limit)
		assert.True(t, strings.HasPrefix(got, "*Заголовок новини\\.*\n\n"), got)
		assert.True(t, strings.HasSuffix(got, "…"), got)
		assert.NotContains(t, strings.TrimSuffix(got, "…"), "\\…")
		// No dangling escape at the cut.
		body := strings.TrimSuffix(got, "…")
		assert.False(t, strings.HasSuffix(body, "\\") && !strings.HasSuffix(body, "\\\\"), got)
	}
}

func TestBuildCaption_EscapedWidthCounts(t *testing.T) {
	// Every content rune escapes to two.
	got := delivery.BuildCaption("T", strings.Repeat(".", 50), 20)
	// "*T*\n\n" is 5 runes, "…" one, leaving 14 for 7 escaped dots.
	assert.Equal(t, "*T*\n\n"+strings.Repeat("\\.", 7)+"…", got)
}

func TestBuildCaption_TitleTooLong(t *testing.T) {
	title := strings.Repeat("Д", 30)
	got := delivery.BuildCaption(title, "Зміст новини", 25)
	assert.Equal(t, "*"+title+"*", got)
}

func TestDeliver(t *testing.T) {
	sender := &fakeSender{failOn: map[string]error{"https://img/fail.jpg": errors.New("telegram API error: status 400")}}
	d := delivery.NewDeliverer(sender, delivery.Options{
		ChatID:          "@news",
		CaptionMaxRunes: 1024,
		RequiredCharset: config.UkrainianAlphabet,
	}, logger.Nop())

	in := []article.Article{
		{ID: 1, Title: "Новина", Content: "Текст новини.", Image: "https://img/1.jpg"},
		{ID: 2, Title: "Без фото", Content: "Текст."},
		{ID: 3, Title: "Nowe przepisy", Content: "Treść po polsku.", Image: "https://img/3.jpg"},
		{ID: 4, Title: "Збій", Content: "Текст.", Image: "https://img/fail.jpg"},
		{ID: 5, Title: " ", Content: "Текст.", Image: "https://img/5.jpg"},
		{ID: 6, Title: "Ще одна", Content: "", Image: "https://img/6.jpg"},
		{ID: 7, Title: "Остання", Content: "Кінець.", Image: "https://img/7.jpg"},
	}

	res := d.Deliver(context.Background(), in)

	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 4, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []int64{1, 7}, article.IDs(res.Delivered))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, sent{"@news", "https://img/1.jpg", "*Новина*\n\nТекст новини\\.", "MarkdownV2"}, sender.sent[0])
}

func TestDeliver_NoCharsetGate(t *testing.T) {
	sender := &fakeSender{}
	d := delivery.NewDeliverer(sender, delivery.Options{ChatID: "1"}, logger.Nop())

	res := d.Deliver(context.Background(), []article.Article{{Title: "Nowe", Content: "Treść", Image: "https://img/1.jpg"}})
	assert.Equal(t, 1, res.Sent)
}
