package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/cooldown"
	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/resilience"
)

// fakeChannel replays scripted replies. Each Send pops the next sendErrs
// entry; each Recent pops the next replies entry.
type fakeChannel struct {
	sent     []string
	sendErrs []error
	replies  [][]Message
	docs     map[string]string // file name -> html body
	dlErr    error

	downloaded []string
}

func (f *fakeChannel) Send(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return err
	}
	return nil
}

func (f *fakeChannel) Recent(_ context.Context, n int) ([]Message, error) {
	if len(f.replies) == 0 {
		return nil, nil
	}
	msgs := f.replies[0]
	f.replies = f.replies[1:]
	if len(msgs) > n {
		msgs = msgs[:n]
	}
	return msgs, nil
}

func (f *fakeChannel) Download(_ context.Context, doc *Document, dir string) (string, error) {
	if f.dlErr != nil {
		return "", f.dlErr
	}
	path := filepath.Join(dir, doc.FileName)
	if err := os.WriteFile(path, []byte(f.docs[doc.FileName]), 0o600); err != nil {
		return "", err
	}
	f.downloaded = append(f.downloaded, path)
	return path, nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestClient(t *testing.T, ch Channel) (*Client, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	cfg := DefaultConfig()
	cfg.Cooldown = cooldown.Seconds(30, 30)
	cfg.DownloadDir = t.TempDir()
	return NewClient(ch, cfg, WithSleep(rec.sleep)), rec
}

func TestQuery_TextReply(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{replies: [][]Message{{
		{Text: "Телефон: +79991234567\nEmail: user@example.com\nДата рождения: 01.01.1990"},
		{Text: "/raw 1234567890"},
	}}}
	c, rec := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1234567890", "Ivanov Ivan")

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, []string{"+79991234567"}, res.Data.Phones)
	assert.Equal(t, []string{"user@example.com"}, res.Data.Emails)
	assert.Equal(t, "01.01.1990", res.Data.Birthday)
	assert.Equal(t, []string{"/raw 1234567890"}, ch.sent)
	assert.Equal(t, []time.Duration{30 * time.Second}, rec.waits)
}

func TestQuery_NothingFound(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{replies: [][]Message{{
		{Text: "По вашему запросу ничего не найдено"},
		{Text: "+79991234567"},
	}}}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
	assert.True(t, res.Data.Empty())
	assert.NoError(t, res.Err)
}

func TestQuery_ServiceLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"Условием использования данного бота является подписка на канал", "Условием данного бота является подписка на"},
		{"Ваша учётная запись заблокирована", "Учетная запись заблокирована"},
		{"Учетная запись временно заблокирована", "Учетная запись заблокирована"},
		{"Ваш аккаунт был заблокирован навсегда", "Ваш аккаунт был заблокирован"},
		{"Вы исчерпали дневной лимит запросов", "Превышен дневной лимит запросов"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			ch := &fakeChannel{replies: [][]Message{{{Text: tt.text}}}}
			c, _ := newTestClient(t, ch)

			res := c.Query(context.Background(), "/raw 1", "X")
			assert.Equal(t, model.OutcomeServiceLimit, res.Outcome)
			assert.Equal(t, tt.want, res.Limit)
		})
	}
}

func TestQuery_ServiceLimitBeatsNotFound(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{replies: [][]Message{{
		{Text: "ничего не найдено"},
		{Text: "Вы исчерпали лимит запросов"},
	}}}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")
	assert.Equal(t, model.OutcomeServiceLimit, res.Outcome)
}

func TestQuery_FloodWaitRetriesWholeExchange(t *testing.T) {
	t.Parallel()

	flood := resilience.NewRetryAfterError(errors.New("FLOOD_WAIT_5"), 5*time.Second)
	ch := &fakeChannel{
		sendErrs: []error{flood},
		replies:  [][]Message{{{Text: "+79991234567"}}},
	}
	c, rec := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Equal(t, []string{"+79991234567"}, res.Data.Phones)
	assert.Equal(t, []string{"/raw 1", "/raw 1"}, ch.sent, "query must be resent after the wait")
	require.NotEmpty(t, rec.waits)
	assert.GreaterOrEqual(t, rec.waits[0], 15*time.Second)
}

func TestQuery_FloodWaitRepeatedIsUnbounded(t *testing.T) {
	t.Parallel()

	flood := resilience.NewRetryAfterError(errors.New("FLOOD_WAIT_1"), time.Second)
	ch := &fakeChannel{
		sendErrs: []error{flood, flood, flood, flood, flood},
		replies:  [][]Message{{{Text: "user@example.com"}}},
	}
	c, rec := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.Len(t, ch.sent, 6)
	// five flood waits plus one reply cooldown
	assert.Len(t, rec.waits, 6)
}

func TestQuery_FloodRetryCap(t *testing.T) {
	t.Parallel()

	flood := resilience.NewRetryAfterError(errors.New("FLOOD_WAIT_1"), time.Second)
	ch := &fakeChannel{sendErrs: []error{flood, flood, flood}}
	rec := &sleepRecorder{}
	cfg := DefaultConfig()
	cfg.MaxFloodRetries = 1
	c := NewClient(ch, cfg, WithSleep(rec.sleep))

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeTransient, res.Outcome)
	assert.Len(t, ch.sent, 2)
}

func TestQuery_OtherErrorBecomesTransient(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{sendErrs: []error{errors.New("connection lost")}}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeTransient, res.Outcome)
	assert.True(t, res.Data.Empty())
	assert.Error(t, res.Err)
	assert.Len(t, ch.sent, 1)
}

func TestQuery_DocumentParsedAndRemoved(t *testing.T) {
	t.Parallel()

	report := `<div class="card">
<div class="row"><div class="row_left">ФИО</div><div class="row_right">Ivanov Ivan Ivanovich</div></div>
<div class="row"><div class="row_left">Телефон</div><div class="row_right">+79995550000</div></div>
<div class="row"><div class="row_left">Email</div><div class="row_right">doc@example.com</div></div>
<div class="row"><div class="row_left">Дата рождения</div><div class="row_right">03.03.1993</div></div>
</div>`
	ch := &fakeChannel{
		replies: [][]Message{{
			{Text: "Отчёт во вложении", Document: &Document{FileName: "report.html"}},
			{Text: "+79991234567", Document: &Document{FileName: "photo.jpg"}},
		}},
		docs: map[string]string{"report.html": report},
	}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "Ivanov Ivan")

	assert.Equal(t, model.OutcomeFound, res.Outcome)
	assert.ElementsMatch(t, []string{"+79995550000", "+79991234567"}, res.Data.Phones)
	assert.Equal(t, []string{"doc@example.com"}, res.Data.Emails)
	assert.Equal(t, "03.03.1993", res.Data.Birthday)

	require.Len(t, ch.downloaded, 1, "only the html attachment is downloaded")
	_, err := os.Stat(ch.downloaded[0])
	assert.True(t, os.IsNotExist(err), "downloaded report must be removed")
	_, err = os.Stat(filepath.Dir(ch.downloaded[0]))
	assert.True(t, os.IsNotExist(err), "scoped download dir must be removed")
}

func TestQuery_DownloadFailureCleansUp(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{
		replies: [][]Message{{{Document: &Document{FileName: "report.html"}}}},
		dlErr:   errors.New("file reference expired"),
	}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")

	assert.Equal(t, model.OutcomeTransient, res.Outcome)
	entries, err := os.ReadDir(c.cfg.DownloadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestQuery_EmptyReplyIsNotFound(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{replies: [][]Message{{{Text: "Запрос принят"}}}}
	c, _ := newTestClient(t, ch)

	res := c.Query(context.Background(), "/raw 1", "X")
	assert.Equal(t, model.OutcomeNotFound, res.Outcome)
}

func TestQuery_ContextCancelledDuringCooldown(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{replies: [][]Message{{{Text: "+79991234567"}}}}
	cfg := DefaultConfig()
	c := NewClient(ch, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Query(ctx, "/raw 1", "X")
	assert.Equal(t, model.OutcomeTransient, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestDocument_HasExt(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Document{FileName: "a.html"}).HasExt(".html"))
	assert.True(t, (&Document{FileName: "A.HTML"}).HasExt(".html"))
	assert.False(t, (&Document{FileName: "a.htm"}).HasExt(".html"))
	assert.False(t, (*Document)(nil).HasExt(".html"))
}
