package worker

import (
	"errors"
	"testing"
	"time"

	"lnledger/pkg/logger"

	"github.com/stretchr/testify/assert"
)

func init() {
	_ = logger.Init("development")
}

type fakeWorker struct {
	runs    int
	panics  bool
	failErr error
}

func (f *fakeWorker) Run() error {
	f.runs++
	if f.panics {
		panic("boom")
	}
	return f.failErr
}

func (f *fakeWorker) Timeout() time.Duration { return time.Millisecond }
func (f *fakeWorker) Name() string           { return "fake" }

func TestRunIsolated_SwallowsPanic(t *testing.T) {
	w := &fakeWorker{panics: true}
	assert.NotPanics(t, func() { runIsolated(w) })
	assert.Equal(t, 1, w.runs)
}

func TestRunIsolated_LogsErrorWithoutPanicking(t *testing.T) {
	w := &fakeWorker{failErr: errors.New("transient")}
	assert.NotPanics(t, func() { runIsolated(w) })
	assert.Equal(t, 1, w.runs)
}

func TestRunIsolated_SuccessIsQuiet(t *testing.T) {
	w := &fakeWorker{}
	runIsolated(w)
	assert.Equal(t, 1, w.runs)
}
