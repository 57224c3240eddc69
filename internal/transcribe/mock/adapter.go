// Package mock provides a canned Transcriber for tests and local runs
// without a speech backend.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/JarrySand/whisper-discord-sub000/internal/transcribe"
)

// DefaultResponses are cycled through by successive Transcribe calls.
var DefaultResponses = []string{
	"今日の議題は新しいプロジェクトの進め方についてです",
	"予算の承認は来週の会議で行います",
	"それでは次の項目に移りましょう",
	"ドキュメントは共有フォルダにアップロードしました",
	"以上で本日の定例を終わります",
}

// Adapter implements transcribe.Transcriber with canned responses and
// scriptable failures.
type Adapter struct {
	mu        sync.Mutex
	responses []string
	idx       int
	failNext  int
	failWith  error
	unhealthy bool
	delay     time.Duration

	calls        int
	healthProbes int
}

// New creates a mock adapter cycling through DefaultResponses.
func New() *Adapter {
	return &Adapter{responses: DefaultResponses}
}

// NewWithResponses creates a mock adapter with a fixed response list.
func NewWithResponses(responses ...string) *Adapter {
	return &Adapter{responses: responses}
}

// FailNext makes the next n Transcribe calls return err.
func (a *Adapter) FailNext(n int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failNext = n
	a.failWith = err
}

// SetHealthy controls what HealthCheck reports.
func (a *Adapter) SetHealthy(healthy bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unhealthy = !healthy
}

// SetDelay adds synthetic latency to every Transcribe call.
func (a *Adapter) SetDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
}

// Calls returns how many Transcribe calls have been made.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// Transcribe returns the next canned response.
func (a *Adapter) Transcribe(ctx context.Context, req *transcribe.Request) (*transcribe.Result, error) {
	a.mu.Lock()
	a.calls++
	delay := a.delay
	if a.failNext > 0 {
		a.failNext--
		err := a.failWith
		a.mu.Unlock()
		if err == nil {
			err = transcribe.NewTransientError(503, "mock failure")
		}
		return nil, err
	}
	text := ""
	if len(a.responses) > 0 {
		text = a.responses[a.idx%len(a.responses)]
		a.idx++
	}
	a.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, transcribe.NewTransientError(0, ctx.Err().Error())
		}
	}

	return &transcribe.Result{
		Text:             text,
		Confidence:       0.95,
		ProcessingTimeMs: delay.Milliseconds(),
	}, nil
}

// HealthCheck reports the scripted health state.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.healthProbes++
	if a.unhealthy {
		return transcribe.NewTransientError(503, "mock unhealthy")
	}
	return nil
}
