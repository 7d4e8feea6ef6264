package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/queue-api/internal/model"
	"github.com/jwalitptl/queue-api/pkg/logger"
	"github.com/jwalitptl/queue-api/pkg/messaging"
	"github.com/jwalitptl/queue-api/pkg/metrics"
)

const testChannel = "queue_updates"

func sampleEvent() *model.QueueEvent {
	resourceID := uuid.New()
	return &model.QueueEvent{
		Type:               model.QueueEventBooking,
		PartitionKey:       "slot:" + uuid.NewString(),
		CurrentServingRank: 1,
		EstimatedWait:      20,
		OrganizationID:     uuid.New(),
		ServiceID:          uuid.New(),
		ResourceID:         &resourceID,
	}
}

func TestTopics(t *testing.T) {
	event := sampleEvent()
	assert.Equal(t, []string{
		"org:" + event.OrganizationID.String(),
		"service:" + event.ServiceID.String(),
		"resource:" + event.ResourceID.String(),
	}, Topics(event))

	event.ResourceID = nil
	assert.Len(t, Topics(event), 2)
}

func TestNotifierDropsWhenBufferFull(t *testing.T) {
	m := metrics.NewForTest()
	n := NewNotifier(messaging.NewLocalBroker(1), testChannel, 1, m, logger.Nop())

	n.Publish(sampleEvent())
	n.Publish(sampleEvent())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BroadcastsDropped.WithLabelValues("notifier")))
}

func TestNotifierRelaysThroughBrokerToHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewForTest()
	broker := messaging.NewLocalBroker(8)
	hub := NewHub(m, logger.Nop())
	n := NewNotifier(broker, testChannel, 8, m, logger.Nop())

	event := sampleEvent()
	c := NewClient(4)
	hub.Register(c)
	require.True(t, hub.Join(c, Topic(TopicService, event.ServiceID)))

	relayDone := make(chan error, 1)
	go func() { relayDone <- Relay(ctx, broker, testChannel, hub, logger.Nop()) }()
	go n.Run(ctx)

	// Relay subscribes asynchronously; keep publishing until it is listening.
	var got Message
	require.Eventually(t, func() bool {
		n.Publish(event)
		select {
		case payload := <-c.Messages():
			return json.Unmarshal(payload, &got) == nil
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, EventName, got.Event)
	require.NotNil(t, got.Data)
	assert.Equal(t, event.PartitionKey, got.Data.PartitionKey)
	assert.Equal(t, 20, got.Data.EstimatedWait)

	cancel()
	select {
	case err := <-relayDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestServeJoinAndReceive(t *testing.T) {
	hub := NewHub(metrics.NewForTest(), logger.Nop())
	upgrader := NewUpgrader("*")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Serve(hub, upgrader, ClientConfig{}, logger.Nop(), w, r)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	topic := Topic(TopicOrganization, uuid.New())
	require.NoError(t, conn.WriteJSON(Command{Action: "join", Topic: topic}))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.True(t, reply.OK)

	require.NoError(t, conn.WriteJSON(Command{Action: "join", Topic: "bogus"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.False(t, reply.OK)
	assert.Equal(t, "invalid topic", reply.Error)

	assert.Equal(t, 1, hub.Broadcast([]string{topic}, []byte(`{"event":"queue_update"}`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"queue_update"}`, string(data))
}
