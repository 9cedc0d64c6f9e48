package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog"

	"vault-capacity-alerts/internal/alerting"
	"vault-capacity-alerts/internal/asset"
	"vault-capacity-alerts/internal/capacity"
	"vault-capacity-alerts/internal/fetcher"
	"vault-capacity-alerts/internal/metrics"
	"vault-capacity-alerts/internal/scheduler"
	"vault-capacity-alerts/internal/storage"
)

// ErrCycleInProgress is reported when a cycle for the same asset is still running.
var ErrCycleInProgress = errors.New("service: cycle already running for asset")

// Options configure the dispatcher.
type Options struct {
	Assets          []asset.Asset
	MaxConcurrency  int
	StoreTimeout    time.Duration
	AdvisoryLockKey int64
}

// CycleReport summarises one asset cycle.
type CycleReport struct {
	Asset     asset.Symbol
	Outcome   string
	At        time.Time
	Result    capacity.Result
	Triggered int
	Delivered int
	Failed    int
	Retired   int64
	Duration  time.Duration
}

// Service runs the fetch, compute, match, notify, retire cycle and exposes the alert API.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.PoolStateFetcher
	store     storage.ThresholdStore
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	assets       []asset.Asset
	storeTimeout time.Duration
	locker       storage.AdvisoryLocker
	lockKey      int64

	inFlight     *xsync.Map[asset.Symbol, struct{}]
	assetPool    pond.Pool
	deliveryPool pond.Pool
	closeOnce    sync.Once
}

// New constructs the dispatcher. sched may be nil when only the alert API is used.
func New(opts Options, sched *scheduler.Scheduler, poolFetcher fetcher.PoolStateFetcher, store storage.ThresholdStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if len(opts.Assets) == 0 {
		opts.Assets = asset.All()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 16
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:    sched,
		fetcher:      poolFetcher,
		store:        store,
		notifier:     notifier,
		metrics:      m,
		logger:       logger.With().Str("component", "service").Logger(),
		assets:       opts.Assets,
		storeTimeout: opts.StoreTimeout,
		locker:       locker,
		lockKey:      opts.AdvisoryLockKey,
		inFlight:     xsync.NewMap[asset.Symbol, struct{}](),
		// asset cycles and deliveries use separate pools so a cycle waiting
		// on its deliveries never starves them of workers
		assetPool:    pond.NewPool(len(opts.Assets)),
		deliveryPool: pond.NewPool(opts.MaxConcurrency),
	}
}

// Close drains the worker pools.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.assetPool.StopAndWait()
		s.deliveryPool.StopAndWait()
	})
}

// Run starts the polling loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	err := s.scheduler.Run(ctx, s.Tick)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Tick processes every tracked asset concurrently. Remote failures are
// logged per asset; only store failures are returned.
func (s *Service) Tick(ctx context.Context, at time.Time) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	group := s.assetPool.NewGroup()
	for _, a := range s.assets {
		group.Submit(func() {
			report, err := s.safeProcess(ctx, a)
			if err != nil && isStoreFailure(report.Outcome) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", a.Symbol, err))
				mu.Unlock()
			}
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	s.logger.Debug().Time("at", at).Int("assets", len(s.assets)).Msg("tick complete")
	return errors.Join(errs...)
}

func isStoreFailure(outcome string) bool {
	return outcome == metrics.OutcomeStoreError
}

func (s *Service) safeProcess(ctx context.Context, a asset.Asset) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("asset", a.Symbol.String()).Msg("asset cycle panicked")
			err = fmt.Errorf("asset cycle panicked: %v", r)
		}
	}()
	return s.ProcessAsset(ctx, a)
}

// ProcessAsset runs one cycle for a single asset. A cycle is skipped when a
// previous cycle for the same asset is still running here or, with an
// advisory locker, in another replica.
func (s *Service) ProcessAsset(ctx context.Context, a asset.Asset) (CycleReport, error) {
	started := time.Now()
	report := CycleReport{Asset: a.Symbol, At: started.UTC()}
	logger := s.logger.With().Str("asset", a.Symbol.String()).Logger()

	finish := func(outcome string, err error) (CycleReport, error) {
		report.Outcome = outcome
		report.Duration = time.Since(started)
		s.metrics.ObserveCycle(a.Symbol.String(), outcome, report.Duration)
		return report, err
	}

	if _, running := s.inFlight.LoadOrStore(a.Symbol, struct{}{}); running {
		logger.Warn().Msg("previous cycle still running, skipping")
		return finish(metrics.OutcomeSkipped, ErrCycleInProgress)
	}
	defer s.inFlight.Delete(a.Symbol)

	unlock, proceed, err := s.acquireLock(ctx, a)
	if err != nil {
		logger.Error().Err(err).Msg("advisory lock failed")
		return finish(metrics.OutcomeStoreError, err)
	}
	if !proceed {
		logger.Debug().Msg("advisory lock held elsewhere, skipping")
		return finish(metrics.OutcomeSkipped, ErrCycleInProgress)
	}
	if unlock != nil {
		defer unlock()
	}

	// Fetching
	snap, err := s.fetcher.FetchPool(ctx, a)
	if err != nil {
		switch {
		case errors.Is(err, fetcher.ErrMalformed):
			logger.Error().Err(err).Msg("pool objects malformed, cycle aborted")
			return finish(metrics.OutcomeMalformed, err)
		case errors.Is(err, fetcher.ErrNotFound):
			logger.Warn().Err(err).Msg("pool objects unavailable, cycle aborted")
			return finish(metrics.OutcomeNotFound, err)
		default:
			logger.Warn().Err(err).Msg("fetch failed, cycle aborted")
			return finish(metrics.OutcomeNotFound, fmt.Errorf("%w: %v", fetcher.ErrNotFound, err))
		}
	}

	// Computing
	result, err := capacity.Compute(snap)
	if err != nil {
		logger.Error().Err(err).Msg("capacity computation failed, cycle aborted")
		return finish(metrics.OutcomeDivideByZero, err)
	}
	report.Result = result
	s.metrics.SetAvailable(a.Symbol.String(), asset.ToHuman(result.AvailableCapacity, a))

	// the remaining steps run to completion even if shutdown begins
	cycleCtx := context.WithoutCancel(ctx)

	// Querying
	queryCtx, cancel := context.WithTimeout(cycleCtx, s.storeTimeout)
	records, err := s.store.SelectTriggered(queryCtx, a.Symbol, result.AvailableCapacity)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("select triggered alerts failed")
		return finish(metrics.OutcomeStoreError, err)
	}
	report.Triggered = len(records)
	if len(records) == 0 {
		logger.Debug().Str("available", result.AvailableCapacity.String()).Msg("no alerts triggered")
		return finish(metrics.OutcomeIdle, nil)
	}

	logger.Info().Int("alerts", len(records)).
		Str("available", asset.FormatHuman(result.AvailableCapacity, a)).
		Msg("alerts triggered")

	// Notifying
	delivered, failed := s.notifyAll(cycleCtx, a, result.AvailableCapacity, records, logger)
	report.Delivered = delivered
	report.Failed = failed

	// Retiring
	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	retireCtx, cancel := context.WithTimeout(cycleCtx, s.storeTimeout)
	retired, err := s.store.DeleteAlertsByID(retireCtx, ids)
	cancel()
	if err != nil {
		logger.Error().Err(err).Ints64("alert_ids", ids).Msg("retire alerts failed")
		return finish(metrics.OutcomeStoreError, err)
	}
	report.Retired = retired
	s.metrics.ObserveRetired(a.Symbol.String(), retired)

	logger.Info().Int("delivered", delivered).Int("failed", failed).Int64("retired", retired).Msg("alerts retired")
	return finish(metrics.OutcomeOK, nil)
}

// notifyAll makes one isolated attempt per record and waits for all of them.
func (s *Service) notifyAll(ctx context.Context, a asset.Asset, available *big.Int, records []storage.AlertRecord, logger zerolog.Logger) (delivered, failed int) {
	observed := time.Now().UTC()
	outcomes := make([]string, len(records))

	group := s.deliveryPool.NewGroup()
	for i, rec := range records {
		group.Submit(func() {
			outcomes[i] = s.deliver(ctx, alerting.Notification{
				AlertID:           rec.ID,
				UserID:            rec.UserID,
				Asset:             a,
				AvailableCapacity: new(big.Int).Set(available),
				Threshold:         rec.Threshold,
				ObservedAt:        observed,
			}, logger)
		})
	}
	if err := group.Wait(); err != nil {
		logger.Error().Err(err).Msg("delivery group stopped early")
	}

	for _, outcome := range outcomes {
		if outcome == metrics.DeliverySent {
			delivered++
		} else {
			failed++
		}
	}
	return delivered, failed
}

// deliver never returns an error or panics; its outcome is reported instead.
func (s *Service) deliver(ctx context.Context, note alerting.Notification, logger zerolog.Logger) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("user_id", note.UserID).Int64("alert_id", note.AlertID).Msg("notifier panicked")
			outcome = metrics.DeliveryPanic
		}
		s.metrics.ObserveDelivery(note.Asset.Symbol.String(), outcome)
	}()

	if s.notifier == nil {
		return metrics.DeliveryFailed
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		logger.Error().Err(err).Int64("user_id", note.UserID).Int64("alert_id", note.AlertID).Msg("failed to dispatch alert")
		return metrics.DeliveryFailed
	}
	return metrics.DeliverySent
}

func (s *Service) acquireLock(ctx context.Context, a asset.Asset) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey+int64(assetIndex(a.Symbol)))
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func assetIndex(sym asset.Symbol) int {
	for i, a := range asset.All() {
		if a.Symbol == sym {
			return i
		}
	}
	return 0
}
