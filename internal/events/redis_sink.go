package events

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisChannel    = "price-aggregator.signals"
	defaultRedisBufferSize = 1024
	redisPublishTimeout    = 2 * time.Second
)

// RedisSink publishes signals as JSON on a pub/sub channel from a background loop.
// Emit never blocks: when the buffer is full the signal is dropped.
type RedisSink struct {
	client  *redis.Client
	channel string
	queue   chan *Signal
	dropped atomic.Int64

	logger  log.Logger
	svcTags metrics.Tags
}

func NewRedisSink(client *redis.Client, channel string, bufferSize int) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if bufferSize <= 0 {
		bufferSize = defaultRedisBufferSize
	}

	return &RedisSink{
		client:  client,
		channel: channel,
		queue:   make(chan *Signal, bufferSize),
		logger: log.WithFields(log.Fields{
			"svc":     "events",
			"channel": channel,
		}),
		svcTags: metrics.Tags{
			"svc": "events_redis",
		},
	}
}

func (r *RedisSink) Emit(_ context.Context, signal *Signal) {
	select {
	case r.queue <- signal:
	default:
		r.dropped.Add(1)
		metrics.CustomReport(func(s metrics.Statter, tagSpec []string) {
			s.Count("events.redis.dropped.count", 1, tagSpec, 1)
		}, r.svcTags)
	}
}

// Dropped returns how many signals were discarded because the buffer was full.
func (r *RedisSink) Dropped() int64 {
	return r.dropped.Load()
}

// Run publishes queued signals until ctx is cancelled.
func (r *RedisSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-r.queue:
			r.publish(ctx, signal)
		}
	}
}

func (r *RedisSink) publish(ctx context.Context, signal *Signal) {
	payload, err := json.Marshal(signal)
	if err != nil {
		r.logger.WithError(err).Warningln("failed to marshal signal")
		return
	}

	pubCtx, cancelFn := context.WithTimeout(ctx, redisPublishTimeout)
	defer cancelFn()

	if err := r.client.Publish(pubCtx, r.channel, payload).Err(); err != nil {
		metrics.ReportFuncError(r.svcTags)
		r.logger.WithError(err).Warningln("failed to publish signal")
	}
}
