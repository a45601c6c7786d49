package manager

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ParallelMode selects how wide the worker pool is when Workers is zero.
type ParallelMode string

const (
	// ParallelThread sizes the pool for network-bound fetches.
	ParallelThread ParallelMode = "thread"
	// ParallelProcess sizes the pool to the CPU count.
	ParallelProcess ParallelMode = "process"
)

// IncompleteMode is the remediation policy for tickers that are not found
// or fall below the quality threshold.
type IncompleteMode string

const (
	IncompleteDelete    IncompleteMode = "delete"
	IncompleteBlacklist IncompleteMode = "blacklist"
	IncompleteMove      IncompleteMode = "move"
	IncompleteIgnore    IncompleteMode = "ignore"
	IncompleteRaise     IncompleteMode = "raise"
	IncompleteNone      IncompleteMode = "none"
)

// DefaultSampleTickers score the quality threshold when none are configured.
var DefaultSampleTickers = []string{"NVDA", "AMD", "TSLA", "AAPL"}

const defaultRangeDays = 30

// Config drives a Manager.
type Config struct {
	// Tolerance loosens the sampled threshold: threshold × (1 − Tolerance).
	// 1 accepts everything.
	Tolerance float64 `validate:"gte=0,lte=1"`

	// Workers caps the pool. Zero sizes it from ParallelMode.
	Workers int `validate:"gte=0"`

	ParallelMode   ParallelMode   `validate:"omitempty,oneof=thread process multithread multiprocess"`
	IncompleteMode IncompleteMode `validate:"omitempty,oneof=delete blacklist move ignore raise none"`

	// MoveTo receives incomplete records in move mode.
	MoveTo string `validate:"required_if=IncompleteMode move"`

	// RangeDays is how many days of intraday data each fetch requests.
	RangeDays int `validate:"gte=0,lte=30"`

	SampleTickers []string `validate:"dive,required"`

	// Blacklist seeds the tickers skipped by every run.
	Blacklist []string
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid manager config: %w", err)
	}
	return nil
}

// withDefaults fills unset fields and folds mode aliases.
func (c Config) withDefaults() Config {
	switch strings.ToLower(string(c.ParallelMode)) {
	case "", "thread", "multithread":
		c.ParallelMode = ParallelThread
	case "process", "multiprocess":
		c.ParallelMode = ParallelProcess
	}
	if c.IncompleteMode == "" {
		c.IncompleteMode = IncompleteIgnore
	}
	if c.RangeDays == 0 {
		c.RangeDays = defaultRangeDays
	}
	if len(c.SampleTickers) == 0 {
		c.SampleTickers = append([]string(nil), DefaultSampleTickers...)
	}
	return c
}

// poolSize returns the worker count for n tasks.
func (c Config) poolSize(n int) int {
	w := c.Workers
	if w == 0 {
		if c.ParallelMode == ParallelProcess {
			w = runtime.NumCPU()
		} else {
			w = 4 * runtime.NumCPU()
		}
	}
	return max(1, min(w, n))
}
