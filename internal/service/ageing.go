package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/store"
	"go.uber.org/zap"
)

const (
	defaultAgeingInterval = 1 * time.Hour

	// Sources whose trust would move by less than this are left alone.
	MinAgeingChange = 1e-6
)

type AgeingResult struct {
	SessionsScanned int `json:"sessions_scanned"`
	SourcesAged     int `json:"sources_aged"`
	SourcesSkipped  int `json:"sources_skipped"`
}

// AgeingService periodically discounts the trust of idle sources so that
// trust built on old evidence drifts back toward vacuous.
type AgeingService struct {
	store  domain.SessionStore
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewAgeingService(s domain.SessionStore, logger *zap.Logger) *AgeingService {
	return &AgeingService{
		store:    s,
		logger:   logger,
		interval: defaultAgeingInterval,
		stopCh:   make(chan struct{}),
	}
}

func (s *AgeingService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *AgeingService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("ageing worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				s.RunAgeing(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("ageing worker stopped")
				return
			}
		}
	}()
}

func (s *AgeingService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// AgeingFactor is the trust discount for a source idle for elapsed at the
// given hourly rate.
func AgeingFactor(rate float64, elapsed time.Duration) float64 {
	if rate <= 0 || elapsed <= 0 {
		return 1
	}
	return math.Exp(-rate * elapsed.Hours())
}

func (s *AgeingService) RunAgeing(ctx context.Context) *AgeingResult {
	result := &AgeingResult{}

	sessions, err := s.store.ListAgeing(ctx)
	if err != nil {
		s.logger.Error("failed to list sessions for ageing", zap.Error(err))
		return result
	}

	now := timeNow()
	for _, sess := range sessions {
		result.SessionsScanned++
		for _, src := range sess.Sources {
			factor := AgeingFactor(sess.AgeingRate, now.Sub(src.UpdatedAt))
			aged := src.Trust.TrustDiscount(factor)
			if aged.Equal(src.Trust, MinAgeingChange) {
				continue
			}
			err := s.store.UpdateSourceTrust(ctx, src.ID, aged, src.UpdatedAt)
			if errors.Is(err, store.ErrStale) {
				// a round revised this source after it was listed; it is no
				// longer idle
				result.SourcesSkipped++
				s.logger.Debug("ageing skipped updated source",
					zap.String("session_id", sess.ID.String()),
					zap.String("source_id", src.ID.String()))
				continue
			}
			if err != nil {
				s.logger.Error("ageing failed for source",
					zap.String("session_id", sess.ID.String()),
					zap.String("source_id", src.ID.String()),
					zap.Error(err))
				continue
			}
			result.SourcesAged++
		}
	}

	if result.SourcesAged > 0 || result.SourcesSkipped > 0 {
		s.logger.Info("ageing complete",
			zap.Int("sessions_scanned", result.SessionsScanned),
			zap.Int("sources_aged", result.SourcesAged),
			zap.Int("sources_skipped", result.SourcesSkipped))
	}
	return result
}

var timeNow = time.Now
