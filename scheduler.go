package main

import (
	"net/http"
	"time"
)

// Scheduler periodically drops sessions that have been idle for longer than
// the configured idle period. Their locations stay in the store.
type Scheduler struct {
	cfg       *apiConfig
	sweepChan <-chan time.Time
	stop      chan struct{}
	done      chan struct{}
	ticker    *time.Ticker
	sweepJobs func()
}

func NewScheduler(cfg *apiConfig, sweepInterval time.Duration) *Scheduler {
	ticker := time.NewTicker(sweepInterval)
	s := &Scheduler{
		cfg:       cfg,
		sweepChan: ticker.C,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		ticker:    ticker,
	}
	s.sweepJobs = s.runSweep
	return s
}

func (s *Scheduler) Start() {
	go func() {
		defer close(s.done)
		for {
			select {
			case <-s.sweepChan:
				s.cfg.logger.Debug("scheduler: sweeping idle sessions")
				s.sweepJobs()
			case <-s.stop:
				s.cfg.logger.Info("scheduler: stopping")
				s.ticker.Stop()
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for a sweep in progress to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) runSweep() {
	removed := s.cfg.sessions.sweep(s.cfg.sessionIdle)
	sessionsSweptTotal.Add(float64(removed))
	s.cfg.logger.Info("scheduler: idle sessions swept", "removed", removed, "active", s.cfg.sessions.count())
}

// handlerRunSweep is a development-only endpoint that triggers a sweep now.

// @Summary      Manually trigger the idle-session sweep (development only)
// @Tags         development
// @Produce      json
// @Success      202  {object}  map[string]string
// @Router       /dev/runsweep [post]
func (s *Scheduler) handlerRunSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s.cfg.logger.Info("manual sweep triggered")

	s.ticker.Reset(s.cfg.sweepInterval)
	go s.sweepJobs()

	s.cfg.respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "sweep triggered"})
}
