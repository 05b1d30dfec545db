package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
)

// RetryHeader carries the number of failed attempts a message has seen.
const RetryHeader = "X-Retry-Count"

// DefaultMaxRetries is used when ConsumerOpts.MaxRetries is zero.
const DefaultMaxRetries = 3

// Handler processes one message body.
type Handler func(ctx context.Context, data []byte) error

// ConsumerOpts configures Consume.
type ConsumerOpts struct {
	Subject string
	// Queue is the queue group; members share the subject's messages.
	Queue string
	// DLQSubject receives messages that failed MaxRetries times or failed
	// permanently. Empty drops them after logging.
	DLQSubject string
	MaxRetries int
	// RetryDelay is waited before a failed message is re-published.
	RetryDelay time.Duration
	// HandlerTimeout bounds each handler call. Zero means no bound.
	HandlerTimeout time.Duration
	// Submit schedules work, typically a worker pool's Submit. Nil runs the
	// handler on the subscription goroutine.
	Submit func(func()) error
	Logger *slog.Logger
}

// DeadLetter is published to the DLQ subject.
type DeadLetter struct {
	Subject string    `json:"subject"`
	Payload string    `json:"payload"`
	Error   string    `json:"error"`
	Retries int       `json:"retries"`
	At      time.Time `json:"at"`
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the message goes straight to
// the DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryCount reads the retry header of msg.
func RetryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	n, _ := strconv.Atoi(msg.Header.Get(RetryHeader))
	return n
}

// Consume subscribes handler to opts.Subject in opts.Queue. A failed message
// is re-published with an incremented retry header until MaxRetries is
// reached, then sent to the DLQ.
func Consume(nc *nats.Conn, opts ConsumerOpts, handler Handler) (*nats.Subscription, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	process := func(msg *nats.Msg) {
		ctx := contextFrom(msg)
		if opts.HandlerTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.HandlerTimeout)
			defer cancel()
		}

		err := safeCall(ctx, handler, msg.Data)
		if err == nil {
			return
		}
		retries := RetryCount(msg) + 1
		log.Error("natsutil: handler failed",
			"subject", opts.Subject,
			"error", err,
			"retry", retries,
		)

		if IsPermanent(err) || retries >= maxRetries {
			deadLetter(nc, opts, msg.Data, err, retries, log)
			return
		}
		if opts.RetryDelay > 0 {
			time.Sleep(opts.RetryDelay)
		}
		retry := nats.NewMsg(opts.Subject)
		retry.Data = msg.Data
		retry.Header = nats.Header{}
		for k, v := range msg.Header {
			retry.Header[k] = v
		}
		retry.Header.Set(RetryHeader, strconv.Itoa(retries))
		if err := nc.PublishMsg(retry); err != nil {
			log.Error("natsutil: retry publish failed", "subject", opts.Subject, "error", err)
		}
	}

	return nc.QueueSubscribe(opts.Subject, opts.Queue, func(msg *nats.Msg) {
		if opts.Submit == nil {
			process(msg)
			return
		}
		if err := opts.Submit(func() { process(msg) }); err != nil {
			log.Error("natsutil: submit failed, processing inline", "error", err)
			process(msg)
		}
	})
}

// safeCall turns a handler panic into an error so the message takes the
// retry and dead-letter path instead of disappearing.
func safeCall(ctx context.Context, handler Handler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("natsutil: handler panic: %v", r)
		}
	}()
	return handler(ctx, data)
}

func deadLetter(nc *nats.Conn, opts ConsumerOpts, data []byte, cause error, retries int, log *slog.Logger) {
	if opts.DLQSubject == "" {
		log.Warn("natsutil: dropping message", "subject", opts.Subject, "error", cause)
		return
	}
	dl := DeadLetter{
		Subject: opts.Subject,
		Payload: string(data),
		Error:   cause.Error(),
		Retries: retries,
		At:      time.Now().UTC(),
	}
	raw, err := json.Marshal(dl)
	if err != nil {
		log.Error("natsutil: DLQ marshal failed", "error", err)
		return
	}
	if err := nc.Publish(opts.DLQSubject, raw); err != nil {
		log.Error("natsutil: DLQ publish failed", "error", err)
	}
}
