package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
)

// ChannelPrefix is prepended to the job id to form the pub/sub channel.
const ChannelPrefix = "job_updates:"

// Publisher sends Job snapshots on Redis pub/sub. A nil *Publisher is a
// valid no-op publisher.
type Publisher struct {
	rdb *redis.Client
}

// Open connects to redisURL and pings it. An empty URL yields a nil
// Publisher.
func Open(ctx context.Context, redisURL string) (*Publisher, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Publisher{rdb: rdb}, nil
}

func New(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

func Channel(jobID string) string { return ChannelPrefix + jobID }

type message struct {
	Type string   `json:"type"`
	Job  jobs.Job `json:"job"`
}

func (p *Publisher) Publish(ctx context.Context, j jobs.Job) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	b, err := json.Marshal(message{Type: "job_update", Job: j})
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, Channel(j.ID), b).Err()
}

// Subscribe streams Job snapshots for jobID until ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, jobID string) (<-chan jobs.Job, error) {
	if p == nil || p.rdb == nil {
		return nil, fmt.Errorf("redis is not configured")
	}
	sub := p.rdb.Subscribe(ctx, Channel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(jobID), err)
	}
	out := make(chan jobs.Job)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg.Job:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *Publisher) Close() error {
	if p == nil || p.rdb == nil {
		return nil
	}
	return p.rdb.Close()
}
