package ai

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/bryanwahyu/trapscan/internal/application/ratelimit"
	"github.com/bryanwahyu/trapscan/internal/domain/ai"
)

// Service sends every backend call through the request queue so at most one
// call is in flight and rate limits are retried.
type Service struct {
	client ai.Client
	queue  *ratelimit.Queue
}

func NewService(client ai.Client, queue *ratelimit.Queue) *Service {
	return &Service{client: client, queue: queue}
}

func (s *Service) Analyze(ctx context.Context, req ai.Request) (*ai.RawAnalysis, error) {
	var out *ai.RawAnalysis
	err := s.queue.Do(ctx, func(ctx context.Context) error {
		raw, err := s.client.Analyze(ctx, req)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("url", req.URL).Msg("analysis backend call failed")
		return nil, err
	}
	return out, nil
}
