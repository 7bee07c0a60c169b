package kestrelq

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffConfig controls the exponential-backoff retry delay applied
// by the Executor when a handler fails recoverably.
//
// To reproduce the base^attempt sequence named by the dispatch
// contract (attempts 1..MaxRetries produce delays base, base^2, ...,
// base^MaxRetries seconds), set both InitialInterval and Multiplier to
// base seconds: next(attempt) computes
// InitialInterval * Multiplier^(attempt-1), which equals base^attempt
// exactly when InitialInterval == Multiplier == base.
type BackoffConfig struct {
	MaxRetries          uint32
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

type backoffCounter struct {
	BackoffConfig
}

// next computes the delay before the given attempt may run again, and
// whether the retry budget still has room. attempt is the job's
// Attempt counter value immediately after being incremented at claim
// time (so the first failed attempt is attempt == 1).
func (bc *backoffCounter) next(attempt int) (time.Duration, bool) {
	if uint32(attempt) > bc.MaxRetries {
		return 0, false
	}
	exp := float64(bc.InitialInterval) * math.Pow(bc.Multiplier, float64(attempt-1))
	if exp > float64(bc.MaxInterval) {
		exp = float64(bc.MaxInterval)
	}
	if bc.RandomizationFactor > 0 {
		delta := bc.RandomizationFactor * exp
		minExp := exp - delta
		maxExp := exp + delta
		exp = minExp + rand.Float64()*(maxExp-minExp)
	}
	return time.Duration(exp), true
}
