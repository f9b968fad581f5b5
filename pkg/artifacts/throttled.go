package artifacts

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// ThrottledStore limits the request rate against a remote backend. Every
// call waits for a token and gives up when ctx is done.
type ThrottledStore struct {
	next    Store
	limiter *rate.Limiter
}

// NewThrottledStore allows rps requests per second with the given burst.
func NewThrottledStore(next Store, rps float64, burst int) *ThrottledStore {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledStore{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (s *ThrottledStore) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("artifact store throttled: %w", err)
	}
	return nil
}

func (s *ThrottledStore) Store(ctx context.Context, data []byte) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	return s.next.Store(ctx, data)
}

func (s *ThrottledStore) Get(ctx context.Context, digest string) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.next.Get(ctx, digest)
}

func (s *ThrottledStore) Exists(ctx context.Context, digest string) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}
	return s.next.Exists(ctx, digest)
}

func (s *ThrottledStore) Delete(ctx context.Context, digest string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return s.next.Delete(ctx, digest)
}
