package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	available bool
	err       error
	sent      []Message
}

func (s *stubSender) Available() bool { return s.available }
func (s *stubSender) Send(_ context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestDispatch_FanOutIndependentPerChannel(t *testing.T) {
	ok := &stubSender{available: true}
	failing := &stubSender{available: true, err: errors.New("boom")}
	unavailable := &stubSender{available: false}

	d := NewDispatcher(map[string]Sender{
		"ok":          ok,
		"failing":     failing,
		"unavailable": unavailable,
	})

	results := d.Dispatch(context.Background(), []string{"ok", "failing", "unavailable", "unknown"}, Message{Body: "hi"})
	require.Len(t, results, 4)
	assert.Equal(t, OutcomeSent, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.Equal(t, OutcomeUnavailable, results[2].Outcome)
	assert.Equal(t, OutcomeUnavailable, results[3].Outcome)
	assert.Len(t, ok.sent, 1)
}

func TestTruncateRunes_RespectsLimit(t *testing.T) {
	long := strings.Repeat("a", smsMaxCodePoints+50)
	truncated := truncateRunes(long, smsMaxCodePoints)
	assert.Len(t, []rune(truncated), smsMaxCodePoints)
}

func TestTruncateRunes_NoopUnderLimit(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, truncateRunes(short, smsMaxCodePoints))
}

func TestInAppSender_UnavailableWithoutPublisher(t *testing.T) {
	s := NewInAppSender(nil)
	assert.False(t, s.Available())
}

type recordingPublisher struct {
	userID  int64
	subject string
	body    string
}

func (r *recordingPublisher) Publish(_ context.Context, userID int64, subject, body string) error {
	r.userID, r.subject, r.body = userID, subject, body
	return nil
}

func TestInAppSender_PublishesThroughPort(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewInAppSender(pub)
	require.True(t, s.Available())

	require.NoError(t, s.Send(context.Background(), Message{UserID: 42, Subject: "hi", Body: "body"}))
	assert.Equal(t, int64(42), pub.userID)
	assert.Equal(t, "body", pub.body)
}

func TestEmailSender_UnavailableWithoutToken(t *testing.T) {
	s := NewEmailSender(EmailConfig{})
	assert.False(t, s.Available())
}
