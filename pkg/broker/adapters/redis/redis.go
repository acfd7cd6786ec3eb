// Package redis implements broker.Broker against Redis Streams and
// consumer groups, grounded on the teacher's
// pkg/cache/adapters/redis/redis.go connection/error-wrapping style.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/broker"
	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client implements broker.Broker on top of a go-redis v9 client.
type Client struct {
	rdb *goredis.Client
}

// Config holds the Redis connection URL. The timeouts are fixed by New, not
// configured here.
type Config struct {
	URL string
}

// New dials Redis with a 10s dial timeout and 30s read and write timeouts,
// and verifies connectivity with a ping. No periodic health-check interval
// is configured on the client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, apperrors.WrapCode(apperrors.CodeConfiguration, err, "invalid redis url")
	}
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 30 * time.Second
	opts.WriteTimeout = 30 * time.Second

	rdb := goredis.NewClient(opts)
	c := &Client{rdb: rdb}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return classifyConnErr(err, "redis ping failed")
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return apperrors.Wrap(err, "failed to close redis client")
	}
	return nil
}

func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	if err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if broker.IsBusyGroupErr(err) {
			return nil
		}
		return classifyConnErr(err, fmt.Sprintf("failed to create consumer group %s on stream %s", group, stream))
	}
	return nil
}

func (c *Client) PendingRange(ctx context.Context, stream, group string, count int64) ([]broker.PendingEntry, error) {
	entries, err := c.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, classifyConnErr(err, fmt.Sprintf("failed to read pending range on stream %s", stream))
	}

	out := make([]broker.PendingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, broker.PendingEntry{ID: e.ID, DeliveryCount: e.RetryCount})
	}
	return out, nil
}

func (c *Client) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]broker.Message, error) {
	msgs, err := c.rdb.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, classifyConnErr(err, fmt.Sprintf("failed to claim pending entries on stream %s", stream))
	}
	return toMessages(stream, msgs), nil
}

func (c *Client) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) (map[string][]broker.Message, error) {
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	result, err := c.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			// Block elapsed with nothing new: not an error.
			return map[string][]broker.Message{}, nil
		}
		if broker.IsNoGroupErr(err) {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, err.Error(), err)
		}
		return nil, classifyConnErr(err, "failed to read group across streams")
	}

	out := make(map[string][]broker.Message, len(result))
	for _, stream := range result {
		out[stream.Stream] = toMessages(stream.Stream, stream.Messages)
	}
	return out, nil
}

func (c *Client) Ack(ctx context.Context, stream, group, entryID string) error {
	if err := c.rdb.XAck(ctx, stream, group, entryID).Err(); err != nil {
		return classifyConnErr(err, fmt.Sprintf("failed to ack entry %s on stream %s", entryID, stream))
	}
	return nil
}

func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := c.rdb.XAdd(ctx, &goredis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", classifyConnErr(err, fmt.Sprintf("failed to append to stream %s", stream))
	}
	return id, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, classifyConnErr(err, fmt.Sprintf("failed to check existence of key %s", key))
	}
	return n > 0, nil
}

func (c *Client) SetEX(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := c.rdb.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return classifyConnErr(err, fmt.Sprintf("failed to setex key %s", key))
	}
	return nil
}

func toMessages(stream string, msgs []goredis.XMessage) []broker.Message {
	out := make([]broker.Message, 0, len(msgs))
	for _, m := range msgs {
		fields := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			fields[k] = fmt.Sprint(v)
		}
		out = append(out, broker.Message{ID: m.ID, Fields: fields, Stream: stream})
	}
	return out
}

func classifyConnErr(err error, message string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if broker.IsConnErr(err) {
		return apperrors.WrapCode(apperrors.CodeConnection, err, message)
	}
	return apperrors.Wrap(err, message)
}
