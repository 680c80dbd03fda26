package sweep

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-enricher/internal/model"
	"github.com/sells-group/contact-enricher/internal/oracle"
	"github.com/sells-group/contact-enricher/internal/resilience"
	"github.com/sells-group/contact-enricher/internal/resolver"
)

// scriptedChannel is an oracle.Channel replaying one reply per Recent call.
// onSend, when set, runs on every Send.
type scriptedChannel struct {
	replies [][]oracle.Message
	sent    []string
	onSend  func()
}

func (c *scriptedChannel) Send(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	if c.onSend != nil {
		c.onSend()
	}
	return nil
}

func (c *scriptedChannel) Recent(_ context.Context, _ int) ([]oracle.Message, error) {
	if len(c.replies) == 0 {
		return nil, nil
	}
	msgs := c.replies[0]
	c.replies = c.replies[1:]
	return msgs, nil
}

func (c *scriptedChannel) Download(context.Context, *oracle.Document, string) (string, error) {
	return "", nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func oracleResolver(t *testing.T, ch oracle.Channel, sleep resilience.SleepFunc) *resolver.Resolver {
	t.Helper()
	cfg := oracle.DefaultConfig()
	cfg.DownloadDir = t.TempDir()
	return resolver.New(oracle.NewClient(ch, cfg, oracle.WithSleep(sleep)))
}

func singleRow() [][]string {
	return [][]string{
		{"", "", "ФИО", "ИНН", "", "Телефон", ""},
		{"", "", "Иванов Иван Иванович", "1234567890", "", "", ""},
	}
}

func TestProcess_EndToEndThroughOracle(t *testing.T) {
	ch := &scriptedChannel{replies: [][]oracle.Message{
		{{Text: "Телефон: +79991234567\nEmail: user@example.com\nДата рождения: 01.01.1990"}},
		{{Text: "Телефон: +380501112222"}},
	}}
	st := newMemStore(singleRow())
	e, sink, _ := newEngine(t, st, testConfig())

	sum, err := e.Process(context.Background(), oracleResolver(t, ch, noSleep), "session1")
	require.NoError(t, err)

	assert.Equal(t, []string{"/raw 1234567890", "Иванов Иван Иванович 01.01.1990"}, ch.sent)
	assert.Equal(t, "79991234567", st.get(2, 6))
	assert.Equal(t, "user@example.com", st.get(2, 7))
	assert.Equal(t, 1, sum.Processed)
	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].Line(), "'national_id': '1234567890'")
}

// cancellingResolver cancels the sweep context mid-lookup and returns the
// empty result an interrupted query produces.
type cancellingResolver struct{ cancel context.CancelFunc }

func (c cancellingResolver) Resolve(context.Context, model.IdentityRecord) model.EnrichmentResult {
	c.cancel()
	return model.EnrichmentResult{}
}

func TestProcess_CancelledLookupWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newMemStore(sampleRows())
	e, sink, _ := newEngine(t, st, testConfig())

	sum, err := e.Process(ctx, cancellingResolver{cancel: cancel}, "session1")

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.get(3, 6))
	assert.Empty(t, st.get(3, 7))
	assert.Equal(t, []cell{{1, 7}}, st.writes, "only the email header is written")
	assert.Zero(t, sum.Processed)
	assert.Zero(t, sum.Failed)
	assert.Empty(t, sink.events)
}

func TestProcess_ShutdownDuringReplyWaitLeavesRowBlank(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := &scriptedChannel{
		replies: [][]oracle.Message{{{Text: "Телефон: +79991234567"}}},
		onSend:  cancel,
	}
	st := newMemStore(singleRow())
	e, sink, _ := newEngine(t, st, testConfig())

	_, err := e.Process(ctx, oracleResolver(t, ch, resilience.Sleep), "session1")

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, st.get(2, 6))
	assert.Empty(t, st.get(2, 7))
	assert.Empty(t, sink.events)

	// the row is still incomplete, so the next sweep picks it up
	ch.onSend = nil
	ch.replies = [][]oracle.Message{{{Text: "Телефон: +79991234567\nEmail: user@example.com"}}}
	sum, err := e.Process(context.Background(), oracleResolver(t, ch, noSleep), "session1")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, "79991234567", st.get(2, 6))
	assert.Equal(t, "user@example.com", st.get(2, 7))
}
