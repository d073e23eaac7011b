// Copyright 2025 deepset GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy describes a bounded retry loop with a fixed delay between
// attempts. It is the single retry abstraction shared by the transport
// client, the session API, and the object-storage uploader.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// Delay is the fixed pause between attempts.
	Delay time.Duration

	// RetryIf decides whether an error is transient. A nil RetryIf retries
	// every error.
	RetryIf func(error) bool
}

// DefaultRetryPolicy matches the transport defaults: three attempts, one
// second apart, for any error the caller classifies as transient.
func DefaultRetryPolicy(retryIf func(error) bool) RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second, RetryIf: retryIf}
}

// Do runs op until it succeeds, the attempts are exhausted, an error is not
// retryable, or ctx is done. The error of the last attempt is returned.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if p.RetryIf != nil && !p.RetryIf(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		slog.Debug("retrying after transient error",
			"attempt", attempt, "maxAttempts", attempts, "error", lastErr)

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
