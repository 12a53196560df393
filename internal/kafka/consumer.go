package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	handleAttempts = 3
	handleBackoff  = 200 * time.Millisecond
)

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers}
}

// Start dispatches messages to a pool of workers until ctx is done. Every
// partition is pinned to one worker, so its messages are handled and committed
// in offset order. A message is committed only after h succeeds; if h still
// fails after retrying, nothing after it is committed and Start returns the
// error, leaving the message to be redelivered once the group restarts.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			runErr = err
			cancel()
		})
	}

	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 4)
		wg.Add(1)
		go func(id int, jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if ctx.Err() != nil {
					continue // shutting down: sisa pesan tidak di-commit
				}
				if err := handleWithRetry(ctx, h, m, handleAttempts, handleBackoff); err != nil {
					if ctx.Err() == nil {
						slog.ErrorContext(ctx, "handle message, stopping consumer", "worker", id, "topic", m.Topic,
							"partition", m.Partition, "offset", m.Offset, "error", err)
						fail(fmt.Errorf("%s[%d]@%d: %w", m.Topic, m.Partition, m.Offset, err))
					}
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					slog.ErrorContext(ctx, "commit offset", "worker", id, "topic", m.Topic, "offset", m.Offset, "error", err)
				}
			}
		}(i, lanes[i])
	}

fetch:
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				fail(err)
			}
			break
		}
		select {
		case lanes[laneFor(m.Partition, len(lanes))] <- m:
		case <-ctx.Done():
			break fetch
		}
	}

	for _, l := range lanes {
		close(l)
	}
	wg.Wait()
	return runErr
}

// laneFor maps a partition to a worker.
func laneFor(partition, lanes int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % lanes
}

// handleWithRetry calls h up to attempts times, doubling the wait between
// tries. It gives up early when ctx is done.
func handleWithRetry(ctx context.Context, h Handler, m kafka.Message, attempts int, backoff time.Duration) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		slog.WarnContext(ctx, "handle message failed, retrying", "topic", m.Topic, "offset", m.Offset,
			"attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
