// Package upkeep runs the permissionless maintenance operations on a
// schedule: tax settlement, foreclosure of insolvent keepers, and
// finalization of expired auctions.
package upkeep

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/keepsake-xyz/keepsake/asset"
)

// Sweeper periodically nudges the asset's state machine forward.
type Sweeper struct {
	asset *asset.Asset
	log   *zap.Logger
	cron  *cron.Cron
}

// New creates a sweeper for the given asset.
func New(a *asset.Asset, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{asset: a, log: log}
}

// Start schedules Sweep under the given cron spec (robfig/cron syntax,
// including descriptors like "@every 1m") and starts the scheduler.
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, s.Sweep); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("upkeep started", zap.String("cron", spec))
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("upkeep stopped")
}

// Sweep runs one maintenance pass. Every step is also callable by any
// external party; the sweeper just makes sure nobody has to.
func (s *Sweeper) Sweep() {
	start := time.Now()

	if end := s.asset.AuctionEndTime(); !end.IsZero() && !s.asset.AuctionRunning() {
		if err := s.asset.FinalizeAuction(); err != nil {
			if !errors.Is(err, asset.ErrAuctionNotRunning) && !errors.Is(err, asset.ErrAuctionNotEnded) {
				s.log.Error("finalize auction", zap.Error(err))
			}
		} else {
			s.log.Info("auction finalized", zap.String("keeper", string(s.asset.Keeper())))
		}
	}

	if s.asset.Custody() == asset.KeeperHeld {
		if s.asset.KeeperSolvent() {
			owed := s.asset.OwedSinceLastSettlement()
			if !owed.IsZero() {
				s.asset.Settle()
				s.log.Info("tax settled",
					zap.String("keeper", string(s.asset.Keeper())),
					zap.String("owed", owed.String()))
			}
		} else {
			keeper := s.asset.Keeper()
			if err := s.asset.Foreclose(); err != nil {
				if !errors.Is(err, asset.ErrKeeperSolvent) && !errors.Is(err, asset.ErrNotKeeperHeld) {
					s.log.Error("foreclose", zap.Error(err))
				}
			} else {
				s.log.Info("foreclosed", zap.String("keeper", string(keeper)))
			}
		}
	}

	s.log.Debug("sweep complete", zap.Duration("took", time.Since(start)))
}
