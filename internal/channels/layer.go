// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package channels implements the Redis channel layer used for realtime
// fan-out: point-to-point channels with bounded capacity and named groups of
// channels that expire when idle.
package channels

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"regexp"
	"strconv"
	"time"

	"github.com/ManuGH/backend/internal/config"
	"github.com/ManuGH/backend/internal/log"
	"github.com/ManuGH/backend/internal/metrics"
	"github.com/ManuGH/backend/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrChannelFull  = errors.New("channel over capacity")
	ErrInvalidName  = errors.New("invalid channel or group name")
	ErrNoMessage    = errors.New("no message available")
	ErrNoHosts      = errors.New("channel layer has no hosts")
	ErrInvalidLayer = errors.New("unsupported channel layer backend")
)

const maxNameLength = 100

var (
	channelNamePattern = regexp.MustCompile(`^[a-zA-Z\d\-_.]+(![\d\w\-_.]*)?$`)
	groupNamePattern   = regexp.MustCompile(`^[a-zA-Z\d\-_.]+$`)
)

// Message is a channel payload. Consumers dispatch on its "type" key.
type Message map[string]any

// sendScript appends to a channel list unless it is at capacity.
var sendScript = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Layer is one configured channel layer. Keys are sharded across hosts by name.
type Layer struct {
	alias       string
	shards      []redis.UniversalClient
	prefix      string
	capacity    int
	expiry      time.Duration
	groupExpiry time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// ClientFactory opens a Redis client for one host.
type ClientFactory func(host config.HostPort) redis.UniversalClient

// DefaultClientFactory dials host without authentication on database 0.
func DefaultClientFactory(host config.HostPort) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:         host.Host + ":" + strconv.Itoa(host.Port),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// NewLayer opens one client per host of cfg.
func NewLayer(alias string, cfg config.ChannelLayerConfig, factory ClientFactory) (*Layer, error) {
	if cfg.Backend != "redis" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLayer, cfg.Backend)
	}
	if len(cfg.Hosts) == 0 {
		return nil, ErrNoHosts
	}
	if factory == nil {
		factory = DefaultClientFactory
	}
	shards := make([]redis.UniversalClient, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		shards[i] = factory(h)
	}
	return &Layer{
		alias:       alias,
		shards:      shards,
		prefix:      cfg.Prefix,
		capacity:    cfg.Capacity,
		expiry:      cfg.Expiry,
		groupExpiry: cfg.GroupExpiry,
		logger:      log.WithComponent(config.LoggerBackend).With().Str("channel_layer", alias).Logger(),
		now:         time.Now,
	}, nil
}

func (l *Layer) shard(name string) redis.UniversalClient {
	if len(l.shards) == 1 {
		return l.shards[0]
	}
	return l.shards[crc32.ChecksumIEEE([]byte(name))%uint32(len(l.shards))]
}

func (l *Layer) channelKey(channel string) string {
	return l.prefix + ":" + channel
}

func (l *Layer) groupKey(group string) string {
	return l.prefix + ":group:" + group
}

func validChannel(name string) error {
	if len(name) >= maxNameLength || !channelNamePattern.MatchString(name) {
		return fmt.Errorf("%w: channel %q", ErrInvalidName, name)
	}
	return nil
}

func validGroup(name string) error {
	if len(name) >= maxNameLength || !groupNamePattern.MatchString(name) {
		return fmt.Errorf("%w: group %q", ErrInvalidName, name)
	}
	return nil
}

// NewChannel returns a fresh process-specific channel name under prefix.
func (l *Layer) NewChannel(prefix string) (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate channel name: %w", err)
	}
	name := prefix + "!" + hex.EncodeToString(buf)
	if err := validChannel(name); err != nil {
		return "", err
	}
	return name, nil
}

// Send appends msg to channel. A channel holding Capacity messages rejects
// the send with ErrChannelFull.
func (l *Layer) Send(ctx context.Context, channel string, msg Message) error {
	err := l.send(ctx, channel, msg)
	metrics.IncChannelMessage("send", outcome(err))
	return err
}

func (l *Layer) send(ctx context.Context, channel string, msg Message) error {
	if err := validChannel(channel); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message must not be nil")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	ok, err := sendScript.Run(ctx, l.shard(channel), []string{l.channelKey(channel)},
		string(data), l.capacity, expirySeconds(l.expiry)).Int()
	if err != nil {
		return fmt.Errorf("send to %s: %w", channel, err)
	}
	if ok == 0 {
		return fmt.Errorf("%w: %s", ErrChannelFull, channel)
	}
	return nil
}

// Receive waits up to timeout for the next message on channel.
func (l *Layer) Receive(ctx context.Context, channel string, timeout time.Duration) (Message, error) {
	if err := validChannel(channel); err != nil {
		return nil, err
	}
	res, err := l.shard(channel).BLPop(ctx, timeout, l.channelKey(channel)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessage
	}
	if err != nil {
		metrics.IncChannelMessage("receive", "error")
		return nil, fmt.Errorf("receive from %s: %w", channel, err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		metrics.IncChannelMessage("receive", "error")
		return nil, fmt.Errorf("decode message: %w", err)
	}
	metrics.IncChannelMessage("receive", "success")
	return msg, nil
}

// GroupAdd adds channel to group and refreshes the group's expiry.
func (l *Layer) GroupAdd(ctx context.Context, group, channel string) error {
	if err := validGroup(group); err != nil {
		return err
	}
	if err := validChannel(channel); err != nil {
		return err
	}
	key := l.groupKey(group)
	client := l.shard(group)
	_, err := client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(l.now().Unix()), Member: channel})
		p.Expire(ctx, key, l.groupExpiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("group add %s: %w", group, err)
	}
	return nil
}

// GroupDiscard removes channel from group.
func (l *Layer) GroupDiscard(ctx context.Context, group, channel string) error {
	if err := validGroup(group); err != nil {
		return err
	}
	if err := validChannel(channel); err != nil {
		return err
	}
	if err := l.shard(group).ZRem(ctx, l.groupKey(group), channel).Err(); err != nil {
		return fmt.Errorf("group discard %s: %w", group, err)
	}
	return nil
}

// GroupChannels returns the live members of group, dropping members whose
// membership is older than GroupExpiry.
func (l *Layer) GroupChannels(ctx context.Context, group string) ([]string, error) {
	if err := validGroup(group); err != nil {
		return nil, err
	}
	key := l.groupKey(group)
	client := l.shard(group)
	cutoff := l.now().Add(-l.groupExpiry).Unix()
	if err := client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("expire group %s: %w", group, err)
	}
	members, err := client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list group %s: %w", group, err)
	}
	return members, nil
}

// GroupSend delivers msg to every live member of group. Full channels are
// skipped; the number of channels that accepted the message is returned.
func (l *Layer) GroupSend(ctx context.Context, group string, msg Message) (int, error) {
	ctx, span := telemetry.Tracer("backend/channels").Start(ctx, "channels.group_send")
	span.SetAttributes(telemetry.ChannelAttributes(l.alias, "", group)...)
	defer span.End()

	members, err := l.GroupChannels(ctx, group)
	if err != nil {
		telemetry.RecordError(span, err, "channels")
		metrics.IncChannelMessage("group_send", "error")
		return 0, err
	}
	delivered := 0
	for _, ch := range members {
		err := l.send(ctx, ch, msg)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrChannelFull):
			l.logger.Debug().Str("channel", ch).Str("group", group).Msg("skipping full channel")
		default:
			telemetry.RecordError(span, err, "channels")
			metrics.IncChannelMessage("group_send", "error")
			return delivered, err
		}
	}
	metrics.IncChannelMessage("group_send", "success")
	return delivered, nil
}

// Flush deletes every key under the layer prefix. Intended for tests and
// maintenance commands.
func (l *Layer) Flush(ctx context.Context) error {
	for _, client := range l.shards {
		iter := client.Scan(ctx, 0, l.prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			if err := client.Del(ctx, iter.Val()).Err(); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks every shard.
func (l *Layer) Ping(ctx context.Context) error {
	for _, client := range l.shards {
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every shard client.
func (l *Layer) Close() error {
	var errs []error
	for _, client := range l.shards {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func expirySeconds(d time.Duration) int {
	if s := int(d / time.Second); s > 0 {
		return s
	}
	return 1
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrChannelFull):
		return "full"
	default:
		return "error"
	}
}
