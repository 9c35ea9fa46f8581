// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/luxfi/log"
)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// WithMaxRetries runs operation up to attempts times, waiting delay before
// the first retry and growing the wait exponentially after that. It stops
// early on a Permanent error or when ctx is done.
func WithMaxRetries(
	ctx context.Context,
	logger log.Logger,
	operation func() error,
	attempts int,
	delay time.Duration,
) error {
	if attempts < 1 {
		attempts = 1
	}
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(delay),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(expBackOff, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(operation, b, notifier(logger))
}

// WithRetriesTimeout retries operation until it succeeds or timeout has
// elapsed.
func WithRetriesTimeout(
	ctx context.Context,
	logger log.Logger,
	operation func() error,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notifier(logger))
}

func notifier(logger log.Logger) backoff.Notify {
	return func(err error, wait time.Duration) {
		if logger == nil {
			return
		}
		logger.Warn("operation failed, retrying",
			log.Err(err),
			log.Stringer("wait", wait),
		)
	}
}
