package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultRelayChannel is the Redis pub/sub channel shared by all instances
	DefaultRelayChannel = "kinfolk:realtime"

	relayBufferSize     = 1024
	relayPublishTimeout = 2 * time.Second
)

// Broker is the pub/sub surface the relay needs; *cache.RedisClient
// implements it
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// relayEnvelope wraps an encoded event with its origin so instances can
// drop their own echoes
type relayEnvelope struct {
	Origin string          `json:"origin"`
	UserID string          `json:"user_id,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// RedisRelay fans hub publishes out to other server instances over Redis
// pub/sub and delivers their publishes to local connections. Presence
// transitions stay per instance: a user connected to two instances is
// announced by each.
type RedisRelay struct {
	hub        *Hub
	broker     Broker
	channel    string
	instanceID string
	prom       *metrics.Metrics

	out    chan relayEnvelope
	cancel context.CancelFunc
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisRelay creates the relay and installs it on the hub
func NewRedisRelay(hub *Hub, broker Broker, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	r := &RedisRelay{
		hub:        hub,
		broker:     broker,
		channel:    channel,
		instanceID: uuid.New().String(),
		prom:       metrics.Get(),
		out:        make(chan relayEnvelope, relayBufferSize),
	}
	hub.SetRelay(r)
	return r
}

// InstanceID identifies this process on the relay channel
func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

// Forward queues an envelope for other instances. It never blocks; when the
// outbound buffer is full the envelope is dropped.
func (r *RedisRelay) Forward(userID string, data []byte) {
	select {
	case r.out <- relayEnvelope{Origin: r.instanceID, UserID: userID, Data: data}:
	default:
		r.prom.RelayMessagesTotal.WithLabelValues("dropped").Inc()
		logger.Log.Warn("Relay buffer full, dropping event", logger.WithUserID(userID))
	}
}

// Start subscribes to the relay channel and runs the publish and receive
// loops until Stop
func (r *RedisRelay) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	pubsub := r.broker.Subscribe(ctx, r.channel)
	// Wait for the subscription to be confirmed before serving
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	r.cancel = cancel
	r.pubsub = pubsub

	r.wg.Add(2)
	go r.publishLoop(ctx)
	go r.receiveLoop(ctx, pubsub.Channel())

	logger.Log.Info("Real-time relay started",
		zap.String("channel", r.channel),
		zap.String("instance_id", r.instanceID))
	return nil
}

// Stop closes the subscription and waits for both loops
func (r *RedisRelay) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	_ = r.pubsub.Close()
	r.wg.Wait()
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.out:
			payload, err := json.Marshal(env)
			if err != nil {
				logger.Log.Error("Failed to encode relay envelope", zap.Error(err))
				continue
			}

			pctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
			err = r.broker.Publish(pctx, r.channel, payload)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					r.prom.RelayMessagesTotal.WithLabelValues("publish_failed").Inc()
					logger.Log.Warn("Relay publish failed", zap.Error(err))
				}
				continue
			}
			r.prom.RelayMessagesTotal.WithLabelValues("out").Inc()
		}
	}
}

func (r *RedisRelay) receiveLoop(ctx context.Context, ch <-chan *redis.Message) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle([]byte(msg.Payload))
		}
	}
}

// handle delivers an envelope from another instance to local connections.
// Own echoes and malformed payloads are ignored.
func (r *RedisRelay) handle(payload []byte) int {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Log.Warn("Ignoring malformed relay envelope", zap.Error(err))
		return 0
	}
	if env.Origin == r.instanceID || len(env.Data) == 0 {
		return 0
	}

	r.prom.RelayMessagesTotal.WithLabelValues("in").Inc()
	return r.hub.DeliverLocal(env.UserID, env.Data)
}
