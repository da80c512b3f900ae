// Package poller drives the worker: it long-polls the queue, expands each
// message into work items, hands them to the pipeline, and performs the
// acknowledgment the pipeline's outcome calls for. This is the only place
// that deletes or re-sends queue messages.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"chorus/internal/config"
	"chorus/internal/events"
	"chorus/internal/logging"
	"chorus/internal/pipeline"
	"chorus/internal/queue"
	"chorus/internal/services"
)

// Processor runs the pipeline for one work item.
type Processor interface {
	Process(ctx context.Context, item events.WorkItem, ackEarly pipeline.AckEarlyFunc) pipeline.Result
}

// Stats counts finished jobs for shutdown reporting.
type Stats struct {
	Processed int
	Failed    int
}

// Poller owns the receive loop.
type Poller struct {
	queue     queue.Client
	decoder   *events.Decoder
	processor Processor
	cfg       *config.Config
	logger    *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

func New(q queue.Client, decoder *events.Decoder, processor Processor, cfg *config.Config, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Poller{
		queue:     q,
		decoder:   decoder,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Stats returns the lifetime counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Processed: int(p.processed.Load()),
		Failed:    int(p.failed.Load()),
	}
}

// Run polls until ctx is canceled, then drains in-flight jobs before
// returning. Receive errors back the loop off instead of terminating it;
// a dead queue is an operational problem, not a reason to exit.
func (p *Poller) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	slots := make(chan struct{}, p.cfg.Workflow.MaxConcurrentJobs)

	for {
		if ctx.Err() != nil {
			break
		}
		messages, err := p.queue.Receive(ctx,
			int32(p.cfg.Workflow.BatchSize),
			int32(p.cfg.Workflow.WaitTimeSeconds))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("queue receive failed", logging.Error(err))
			p.sleep(ctx, time.Duration(p.cfg.Workflow.ErrorRetryIntervalSeconds)*time.Second)
			continue
		}

		for _, message := range messages {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				// Slot may not have been taken; the unstarted message
				// redelivers after its visibility window.
				break
			}
			// In-flight jobs are detached from the shutdown signal:
			// cancellation stops new receives while a running
			// ffmpeg/transcription finishes and the delivery settles.
			jobCtx := context.WithoutCancel(ctx)
			wg.Add(1)
			go func(msg queue.Message) {
				defer wg.Done()
				defer func() { <-slots }()
				p.handle(jobCtx, msg)
			}(message)
		}
	}

	wg.Wait()
	return nil
}

// handle runs every work item in one message and settles the delivery.
func (p *Poller) handle(ctx context.Context, message queue.Message) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)
	logger := p.logger.With(logging.String(logging.FieldCorrelationID, requestID))

	items, err := p.decoder.Decode(message.Body)
	if err != nil {
		// Malformed notifications can never parse on redelivery.
		logger.Error("discarding undecodable message", logging.Error(err))
		p.deleteMessage(ctx, message, logger)
		return
	}
	if len(items) == 0 {
		logger.Debug("message carried no work, consuming")
		p.deleteMessage(ctx, message, logger)
		return
	}

	var ackEarly pipeline.AckEarlyFunc
	if p.cfg.Workflow.EarlyAck && len(items) == 1 {
		ackEarly = func(ackCtx context.Context) error {
			return p.queue.Delete(ackCtx, message.ReceiptHandle)
		}
	}

	var anyRetryable, anyPermanent, earlyAcked bool
	for _, item := range items {
		result := p.processor.Process(ctx, item, ackEarly)
		earlyAcked = earlyAcked || result.EarlyAcked
		switch result.Outcome {
		case pipeline.OutcomeCompleted:
			p.processed.Add(1)
		case pipeline.OutcomeFailedRetryable:
			p.failed.Add(1)
			anyRetryable = true
		case pipeline.OutcomeFailedPermanent:
			p.failed.Add(1)
			anyPermanent = true
		}
	}

	// One retryable item keeps the whole delivery alive; redelivered
	// items that already completed republish the same keys harmlessly.
	settled := pipeline.OutcomeCompleted
	if anyPermanent {
		settled = pipeline.OutcomeFailedPermanent
	}
	if anyRetryable {
		settled = pipeline.OutcomeFailedRetryable
	}

	switch pipeline.AckFor(settled, p.cfg.Workflow.RetryPolicy, earlyAcked) {
	case pipeline.AckDelete:
		p.deleteMessage(ctx, message, logger)
	case pipeline.AckRequeue:
		p.requeue(ctx, message, logger)
	case pipeline.AckNone:
		if !earlyAcked {
			logger.Info("leaving message for redelivery",
				logging.String("outcome", settled.String()))
		}
	}
}

func (p *Poller) deleteMessage(ctx context.Context, message queue.Message, logger *slog.Logger) {
	// Deletion must survive shutdown cancellation or the finished job
	// runs again.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
	}
	if err := p.queue.Delete(ctx, message.ReceiptHandle); err != nil {
		logger.Warn("message delete failed, duplicate delivery possible", logging.Error(err))
	}
}

// requeue sends a delayed copy and deletes the original. If the send
// fails the original is left in place so the visibility window still
// provides the retry.
func (p *Poller) requeue(ctx context.Context, message queue.Message, logger *slog.Logger) {
	delay := int32(p.cfg.Workflow.RequeueDelaySeconds)
	if err := p.queue.Send(ctx, message.Body, delay); err != nil {
		logger.Warn("requeue send failed, falling back to redelivery", logging.Error(err))
		return
	}
	p.deleteMessage(ctx, message, logger)
	logger.Info("message requeued", logging.Int("delay_seconds", int(delay)))
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
