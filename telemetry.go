// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package tzst

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-tzst/config"
	"github.com/hashicorp/go-tzst/telemetry"
)

// now is a function point that returns time.Now to the caller.
var now = time.Now

// recorder guards telemetry data that is updated by background writers.
type recorder struct {
	mu sync.Mutex
	td *telemetry.Data
}

func newRecorder(op telemetry.Operation) *recorder {
	return &recorder{td: &telemetry.Data{Operation: op}}
}

// update applies fn to the data while holding the lock.
func (r *recorder) update(fn func(td *telemetry.Data)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.td)
}

// handleError increases the error counter, sets the latest error, logs it
// and returns it wrapped with msg.
func (r *recorder) handleError(cfg *config.Config, msg string, err error) error {
	err = fmt.Errorf("%s: %w", msg, err)
	r.update(func(td *telemetry.Data) {
		td.Errors++
		td.LastError = err
	})
	cfg.Logger().Error(msg, "error", err)
	return err
}

// captureDuration captures the duration of the call
func (r *recorder) captureDuration(start time.Time) {
	r.update(func(td *telemetry.Data) {
		td.Duration = now().Sub(start)
	})
}
