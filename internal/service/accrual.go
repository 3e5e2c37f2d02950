package service

import (
	"context"
	"sync"
	"sync/atomic"

	"ledger-service/internal/domain"
	"ledger-service/internal/usecase"

	"github.com/sirupsen/logrus"
)

// AccrualService is the periodic batch driver for interest and fees. It
// is not part of the engine: it only iterates eligible accounts and
// invokes LedgerUsecase operations. Accounts carry no inter-account
// dependency, so the run is parallelized with a bounded worker pool.
type AccrualService struct {
	ledger  *usecase.LedgerUsecase
	repo    AccountLister
	log     *logrus.Logger
	workers int
}

// AccountLister is the slice of the account store the job needs.
type AccountLister interface {
	ListByStatus(ctx context.Context, status domain.AccountStatus) ([]*domain.Account, error)
}

func NewAccrualService(ledger *usecase.LedgerUsecase, repo AccountLister, log *logrus.Logger, workers int) *AccrualService {
	if log == nil {
		log = logrus.New()
	}
	if workers <= 0 {
		workers = 8
	}
	return &AccrualService{ledger: ledger, repo: repo, log: log, workers: workers}
}

// AccrualReport summarizes one monthly run.
type AccrualReport struct {
	Accounts         int
	InterestCredited int64
	FeesAssessed     int64
	Failures         int64
}

// RunMonthly applies interest to active savings accounts and the
// maintenance fee to active checking accounts. Per-account failures are
// logged and counted; the run continues.
func (s *AccrualService) RunMonthly(ctx context.Context) (*AccrualReport, error) {
	accounts, err := s.repo.ListByStatus(ctx, domain.AccountActive)
	if err != nil {
		return nil, err
	}

	report := &AccrualReport{Accounts: len(accounts)}
	jobs := make(chan *domain.Account)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for account := range jobs {
				s.process(ctx, account, report)
			}
		}()
	}

	for _, account := range accounts {
		jobs <- account
	}
	close(jobs)
	wg.Wait()

	s.log.WithFields(logrus.Fields{
		"accounts": report.Accounts,
		"interest": report.InterestCredited,
		"fees":     report.FeesAssessed,
		"failures": report.Failures,
	}).Info("monthly accrual run finished")
	return report, nil
}

func (s *AccrualService) process(ctx context.Context, account *domain.Account, report *AccrualReport) {
	switch account.Kind {
	case domain.AccountSavings:
		record, err := s.ledger.AccrueInterest(ctx, account.ID)
		if err != nil {
			atomic.AddInt64(&report.Failures, 1)
			s.log.WithError(err).WithField("account_id", account.ID).Warn("interest accrual failed")
			return
		}
		if record != nil {
			atomic.AddInt64(&report.InterestCredited, 1)
		}
	case domain.AccountChecking:
		record, err := s.ledger.AssessFee(ctx, account.ID)
		if err != nil {
			atomic.AddInt64(&report.Failures, 1)
			s.log.WithError(err).WithField("account_id", account.ID).Warn("fee assessment failed")
			return
		}
		if record != nil {
			atomic.AddInt64(&report.FeesAssessed, 1)
		}
	}
}
