package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/palantiri/internal/worker/domain"
)

type published struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

type fakeBroker struct {
	published []published
	err       error
}

func (f *fakeBroker) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{exchange: exchange, routingKey: routingKey, msg: msg})
	return nil
}

func newTestPublisher(broker Broker) *Publisher {
	p := NewPublisher(broker, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p
}

func TestPublisher_PublishTask(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker)

	err := p.Publish(context.Background(), "corr-1", New(ImageRemove, &ImagePayload{ImageTag: "sha256:abc", Host: "10.0.0.1:4242"}))
	require.NoError(t, err)
	require.Len(t, broker.published, 1)

	got := broker.published[0]
	assert.Empty(t, got.exchange)
	assert.Equal(t, ImageRemove, got.routingKey)
	assert.Equal(t, ImageRemove, got.msg.Type)
	assert.Equal(t, "corr-1", got.msg.CorrelationId)
	assert.NotEmpty(t, got.msg.MessageId)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.JSONEq(t, `{"imageTag":"sha256:abc","host":"10.0.0.1:4242"}`, string(got.msg.Body))
}

func TestPublisher_PublishEvent(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker)

	require.NoError(t, p.Publish(context.Background(), "", New(DockRemoved, &DockPayload{Host: "http://10.0.0.1:4242"})))
	require.Len(t, broker.published, 1)
	assert.Equal(t, DockRemoved, broker.published[0].exchange)
	assert.Empty(t, broker.published[0].routingKey)
	assert.NotEmpty(t, broker.published[0].msg.CorrelationId)
}

func TestPublisher_PublishAllValidatesFirst(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker)

	err := p.PublishAll(context.Background(), "corr", []Outgoing{
		New(DockExistsCheck, &DockPayload{Host: "http://10.0.0.1:4242"}),
		New(DockExistsCheck, &DockPayload{Host: "not a uri"}),
	})

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, broker.published)
}

func TestPublisher_BrokerError(t *testing.T) {
	broker := &fakeBroker{err: errors.New("channel closed")}
	p := newTestPublisher(broker)

	err := p.Publish(context.Background(), "", New(HealthCheck, &Empty{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish health-check")
}

func TestPublisher_PublishRaw(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(broker)

	corr, err := p.PublishRaw(context.Background(), DockLost, []byte(`{"host":"http://10.0.0.1:4242","githubOrgId":7,"ignored":1}`))
	require.NoError(t, err)
	assert.NotEmpty(t, corr)
	require.Len(t, broker.published, 1)

	var body map[string]any
	require.NoError(t, json.Unmarshal(broker.published[0].msg.Body, &body))
	assert.Equal(t, map[string]any{"host": "http://10.0.0.1:4242", "githubOrgId": float64(7)}, body)

	_, err = p.PublishRaw(context.Background(), DockLost, []byte(`{}`))
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, broker.published, 1)
}

func TestPublisher_RejectsEmptyPayloadForEveryJob(t *testing.T) {
	for _, def := range Catalogue() {
		t.Run(def.Name, func(t *testing.T) {
			broker := &fakeBroker{}
			p := newTestPublisher(broker)

			_, decodeErr := Decode(def.Name, []byte(`{}`))
			_, rawErr := p.PublishRaw(context.Background(), def.Name, []byte(`{}`))
			publishErr := p.Publish(context.Background(), "corr", New(def.Name, def.NewPayload()))

			if def.Name == HealthCheck {
				assert.NoError(t, decodeErr)
				assert.NoError(t, rawErr)
				assert.NoError(t, publishErr)
				assert.Len(t, broker.published, 2)
				return
			}

			for _, err := range []error{decodeErr, rawErr, publishErr} {
				var verr *domain.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, def.Name, verr.Job)
			}
			assert.Empty(t, broker.published)
		})
	}
}
