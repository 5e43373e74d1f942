package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSweep(t *testing.T) {
	testCfg := newTestAPIConfig(t, nil)
	cfg := testCfg.apiConfig
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg.sessions.now = func() time.Time { return now }

	cfg.sessions.get(uuid.NewString())
	cfg.sessions.get(uuid.NewString())
	now = now.Add(2 * cfg.sessionIdle)
	cfg.sessions.get(uuid.NewString())

	s := NewScheduler(cfg, time.Minute)
	defer s.ticker.Stop()
	before := testutil.ToFloat64(sessionsSweptTotal)

	s.runSweep()

	assert.Equal(t, 1, cfg.sessions.count())
	assert.Equal(t, before+2, testutil.ToFloat64(sessionsSweptTotal))
}

func TestSchedulerStartStop(t *testing.T) {
	testCfg := newTestAPIConfig(t, nil)

	ticks := make(chan time.Time)
	var runs atomic.Int32
	swept := make(chan struct{}, 1)

	s := NewScheduler(testCfg.apiConfig, time.Hour)
	s.sweepChan = ticks
	s.sweepJobs = func() {
		runs.Add(1)
		swept <- struct{}{}
	}

	s.Start()
	ticks <- time.Now()
	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweep did not run after a tick")
	}

	s.Stop()
	assert.Equal(t, int32(1), runs.Load())
}

func TestHandlerRunSweep(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		wantStatus int
		wantRun    bool
	}{
		{name: "Triggers sweep", method: http.MethodPost, wantStatus: http.StatusAccepted, wantRun: true},
		{name: "Wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testCfg := newTestAPIConfig(t, nil)
			s := NewScheduler(testCfg.apiConfig, time.Hour)
			defer s.ticker.Stop()
			ran := make(chan struct{}, 1)
			s.sweepJobs = func() { ran <- struct{}{} }

			rr := httptest.NewRecorder()
			s.handlerRunSweep(rr, httptest.NewRequest(tc.method, "/dev/runsweep", nil))

			require.Equal(t, tc.wantStatus, rr.Code)
			if !tc.wantRun {
				return
			}
			select {
			case <-ran:
			case <-time.After(time.Second):
				t.Fatal("manual sweep did not run")
			}
		})
	}
}
