package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/raredx/triage/pkg/common/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	fetchErrs []error
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestPublishEventKeysBySession(t *testing.T) {
	w := &fakeWriter{}
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &Producer{writer: w, topic: "prediction-events", now: func() time.Time { return fixed }}

	err := p.PublishEvent(context.Background(), "prediction.completed", "triage-gateway", "tok-1", map[string]interface{}{"candidates": 2})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "tok-1", string(msg.Key))

	var event models.Event
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "prediction.completed", event.Type)
	assert.Equal(t, "triage-gateway", event.Source)
	assert.True(t, fixed.Equal(event.Timestamp))
	assert.NotEmpty(t, event.ID)
}

func TestPublishEventPropagatesWriteError(t *testing.T) {
	p := &Producer{writer: &fakeWriter{err: errors.New("broker down")}, now: time.Now}
	err := p.PublishEvent(context.Background(), "t", "s", "", nil)
	assert.Error(t, err)
}

func TestConsumeCommitsHandledAndUndecodable(t *testing.T) {
	good, _ := json.Marshal(models.Event{ID: "e1", Type: "prediction.completed"})
	flaky, _ := json.Marshal(models.Event{ID: "e2", Type: "prediction.completed"})
	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("{not json")},
		{Offset: 3, Value: flaky},
	}}
	c := &Consumer{reader: r, maxAttempts: 3, baseBackoff: time.Millisecond}

	var seen []string
	failures := 0
	err := c.Consume(context.Background(), func(_ context.Context, e models.Event) error {
		seen = append(seen, e.ID)
		if e.ID == "e2" && failures < 2 {
			failures++
			return errors.New("store unavailable")
		}
		return nil
	})

	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"e1", "e2", "e2", "e2"}, seen)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumeStopsOnPersistentHandlerFailure(t *testing.T) {
	first, _ := json.Marshal(models.Event{ID: "e1"})
	second, _ := json.Marshal(models.Event{ID: "e2"})
	r := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: first}, {Offset: 8, Value: second}}}
	c := &Consumer{reader: r, maxAttempts: 2, baseBackoff: time.Millisecond}

	storeErr := errors.New("store unavailable")
	calls := 0
	err := c.Consume(context.Background(), func(context.Context, models.Event) error {
		calls++
		return storeErr
	})

	require.ErrorIs(t, err, storeErr)
	assert.Contains(t, err.Error(), "offset 7")
	assert.Equal(t, 2, calls)
	assert.Empty(t, r.committed)
	// the later message stays unread so its offset is never committed past e1
	assert.Len(t, r.msgs, 1)
}

func TestConsumeBacksOffOnFetchErrors(t *testing.T) {
	event, _ := json.Marshal(models.Event{ID: "e1"})
	r := &fakeReader{
		fetchErrs: []error{errors.New("broker unreachable"), errors.New("broker unreachable")},
		msgs:      []kafka.Message{{Offset: 1, Value: event}},
	}
	c := &Consumer{reader: r, maxAttempts: 1, baseBackoff: 10 * time.Millisecond, maxBackoff: 15 * time.Millisecond}

	start := time.Now()
	err := c.Consume(context.Background(), func(context.Context, models.Event) error { return nil })

	assert.ErrorIs(t, err, io.EOF)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.Equal(t, []int64{1}, r.committed)
}

func TestConsumeReturnsWhenCancelledDuringBackoff(t *testing.T) {
	r := &fakeReader{fetchErrs: []error{errors.New("broker unreachable")}}
	c := &Consumer{reader: r, baseBackoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Consume(ctx, func(context.Context, models.Event) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
