package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"dialer_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues dispatch and workflow tasks onto the asynq queue.
type Client struct {
	client *asynq.Client
	queue  string
}

// NewClient creates the task producer.
func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

// Close releases the underlying redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueCycle queues one dispatch cycle for the tenant. Uniqueness over the
// cycle interval collapses duplicate enqueues when a worker lags.
func (c *Client) EnqueueCycle(ctx context.Context, tenantID uuid.UUID, interval time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewDispatchCycleTask(TenantPayload{TenantID: tenantID.String()})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue), asynq.Unique(interval))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// TriggerExecution queues a workflow execution run for the tenant. This is
// the dispatch engine's signal to the executor.
func (c *Client) TriggerExecution(ctx context.Context, tenantID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewWorkflowExecuteTask(TenantPayload{TenantID: tenantID.String()})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue), asynq.Unique(30*time.Second))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

// EnqueueDailyReset queues the daily caller-ID counter reset.
func (c *Client) EnqueueDailyReset(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	_, err := c.client.EnqueueContext(ctx, NewResetDailyCountsTask(),
		asynq.Queue(c.queue), asynq.Unique(12*time.Hour))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
