package queue

import "time"

// Policy bounds how often a failing job is delivered.
type Policy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: 2 * time.Second}
}

type decision int

const (
	ack decision = iota
	retry
	deadLetter
)

func (d decision) String() string {
	switch d {
	case ack:
		return "ack"
	case retry:
		return "retry"
	default:
		return "dead_letter"
	}
}

// decide picks what to do after attempt (1-based) finished with err.
func (p Policy) decide(attempt int, err error) decision {
	if err == nil {
		return ack
	}
	if IsPermanent(err) {
		return deadLetter
	}
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	if attempt < max {
		return retry
	}
	return deadLetter
}

// delay grows linearly with the attempt number.
func (p Policy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Backoff * time.Duration(attempt)
}
