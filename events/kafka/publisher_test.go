package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	eventskafka "github.com/warp/recurring-engine/events/kafka"
	"github.com/warp/recurring-engine/recurring"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublisher_Publish_KeysByCompany(t *testing.T) {
	w := &fakeWriter{}
	p := eventskafka.NewPublisherWithWriter(w)

	event := recurring.InstanceCreated{
		InstanceID:     "inst-1",
		TemplateID:     "tpl-1",
		Kind:           recurring.KindPayable,
		CompanyID:      "acme",
		CounterpartyID: "sup-1",
		Description:    "Rent (Recorrente)",
		Amount:         decimal.RequireFromString("1500.00"),
		DueDate:        recurring.NewDate(2025, time.February, 15),
		CreatedAt:      time.Date(2025, 2, 10, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "acme", string(msg.Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "2025-02-15", decoded["due_date"])
	assert.Equal(t, "payable", decoded["kind"])
	assert.Equal(t, "1500", decoded["amount"])
}

func TestPublisher_Publish_PropagatesWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := eventskafka.NewPublisherWithWriter(w)

	err := p.Publish(context.Background(), recurring.InstanceCreated{CompanyID: "acme"})
	assert.EqualError(t, err, "broker down")
}
