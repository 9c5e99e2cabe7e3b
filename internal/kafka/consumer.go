package kafka

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

const handlerAttempts = 3

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger

	offsets  *offsetTracker
	commitMu sync.Mutex
}

func NewConsumer(brokers []string, group string, topics []string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit manual setelah handler sukses
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log, offsets: newOffsetTracker()}
}

// Lane picks the worker for a message key. Messages with the same key always
// land on the same worker, which keeps per-order event order. Offsets are
// still committed in partition order, see offsetTracker.
func Lane(key []byte, workers int) int {
	if workers <= 1 || len(key) == 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write(key)
	return int(h.Sum32() % uint32(workers))
}

func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				c.handle(ctx, h, m)
			}
		}(lanes[i])
	}
	defer func() {
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
	}()

	// dispatcher loop
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.offsets.fetched(m)
		select {
		case lanes[Lane(m.Key, c.workers)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	mctx := ExtractTrace(ctx, m.Headers)
	var err error
	for attempt := 1; attempt <= handlerAttempts; attempt++ {
		if err = h(mctx, m); err == nil {
			break
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond) // backoff ringan
	}
	if err != nil {
		c.log.Error("handler failed, message skipped",
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}
	c.commit(ctx, m)
}

// commit advances the partition's offset as far as every handled message
// allows. commitMu keeps commits of one partition from going backwards.
func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	upto, ok := c.offsets.done(m)
	if !ok {
		return
	}
	if err := c.r.CommitMessages(ctx, upto); err != nil && ctx.Err() == nil {
		c.log.Warn("commit failed", zap.String("topic", upto.Topic), zap.Int64("offset", upto.Offset), zap.Error(err))
	}
}
