package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

// ErrSuperseded is returned to a search overtaken by a newer one.
var ErrSuperseded = errors.New("search superseded by a newer request")

// Searcher runs schedule searches so that only the latest request wins.
// Each call waits out the debounce window first; a newer call cancels the
// older one, whose result is discarded even if it already arrived.
type Searcher struct {
	gw       Gateway
	debounce time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func NewSearcher(gw Gateway, debounce time.Duration) *Searcher {
	return &Searcher{gw: gw, debounce: debounce}
}

func (s *Searcher) Search(ctx context.Context, q Query) ([]models.Schedule, error) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.debounce > 0 {
		timer := time.NewTimer(s.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, s.abandoned(gen, ctx.Err())
		case <-timer.C:
		}
	}

	res, err := s.gw.FindSchedules(ctx, q)
	if !s.latest(gen) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Searcher) latest(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Searcher) abandoned(gen uint64, err error) error {
	if !s.latest(gen) {
		return ErrSuperseded
	}
	return err
}
