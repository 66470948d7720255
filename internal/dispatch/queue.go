package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memohai/chatgate/internal/config"
)

// QueueBackend publishes work items to a QStash-compatible HTTP queue,
// which calls back the worker endpoint with retries.
type QueueBackend struct {
	client         *http.Client
	baseURL        string
	token          string
	workerBase     string
	retries        int
	timeout        time.Duration
	publishTimeout time.Duration
}

func NewQueueBackend(cfg config.QueueConfig, publicBaseURL string, client *http.Client) *QueueBackend {
	if client == nil {
		client = &http.Client{}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = config.DefaultQueueBaseURL
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &QueueBackend{
		client:         client,
		baseURL:        baseURL,
		token:          strings.TrimSpace(cfg.Token),
		workerBase:     strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		retries:        retries,
		timeout:        cfg.Timeout.Or(config.DefaultQueueTimeout),
		publishTimeout: cfg.PublishTimeout.Or(config.DefaultPublishTimeout),
	}
}

// Healthy reports whether the queue can reach a worker at all: it needs a
// token and a public address for the callback.
func (q *QueueBackend) Healthy() bool {
	return q != nil && q.token != "" && q.workerBase != ""
}

// WorkerURL is the callback receiving items of channel.
func (q *QueueBackend) WorkerURL(channel string) string {
	return q.workerBase + "/api/" + strings.ToLower(strings.TrimSpace(channel)) + "/worker"
}

// Publish sends item to the queue. The call is bounded by the publish timeout.
func (q *QueueBackend) Publish(ctx context.Context, item WorkItem) error {
	if !q.Healthy() {
		return fmt.Errorf("queue not configured")
	}
	if item.Timestamp == 0 {
		item.Timestamp = time.Now().UnixMilli()
	}
	body, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode work item: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, q.publishTimeout)
	defer cancel()

	endpoint := q.baseURL + "/v2/publish/" + q.WorkerURL(item.Channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+q.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Upstash-Retries", strconv.Itoa(q.retries))
	req.Header.Set("Upstash-Timeout", strconv.Itoa(int(q.timeout.Seconds()))+"s")

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish work item: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("publish work item: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
