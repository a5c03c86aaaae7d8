package worker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"kbassist/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeAck struct {
	acked  []uint64
	nacked []uint64
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error { return nil }

type memStore struct{ saved []model.ChatMessage }

func (m *memStore) Create(msg *model.ChatMessage) error {
	m.saved = append(m.saved, *msg)
	return nil
}

type fakeIngester struct {
	ids []uint
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, id uint) error {
	f.ids = append(f.ids, id)
	return f.err
}

func TestRun_AcksAndNacks(t *testing.T) {
	store := &memStore{}
	w := NewQueueWorker(nil, "chat.message.persist", PersistMessages(store), zap.NewNop())
	ack := &fakeAck{}

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(`{"id":9,"session_id":3,"sender":"user","content":"hi","chat_number":1}`)}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`not json`)}
	close(deliveries)

	w.run(context.Background(), deliveries)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, []uint64{2}, ack.nacked)
	require.Len(t, store.saved, 1)
	assert.Equal(t, uint(0), store.saved[0].ID, "ids are assigned by the database")
	assert.Equal(t, uint(3), store.saved[0].SessionID)
	assert.Equal(t, "hi", store.saved[0].Content)
}

func TestRun_StopsOnCancel(t *testing.T) {
	w := NewQueueWorker(nil, "q", PersistMessages(&memStore{}), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.run(ctx, make(chan amqp.Delivery))
}

func TestIngestDocuments(t *testing.T) {
	ingester := &fakeIngester{}
	handler := IngestDocuments(ingester)

	require.NoError(t, handler(context.Background(), []byte(`{"document_id":12}`)))
	assert.Equal(t, []uint{12}, ingester.ids)

	assert.Error(t, handler(context.Background(), []byte(`{}`)))

	ingester.err = errors.New("embedding failed")
	assert.Error(t, handler(context.Background(), []byte(`{"document_id":13}`)))
}
