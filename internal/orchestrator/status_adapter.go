package orchestrator

import (
	"context"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/store"
)

type redisStatusAdapter struct{ s *store.RedisStatus }

// NewStatusAdapter exposes a Redis status store to the orchestrator.
func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, requestID string, st Status) error {
	return a.s.Set(ctx, requestID, store.Status{
		Status:   st.Status,
		Stage:    st.Stage,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: st.Metadata,
	})
}

func (a *redisStatusAdapter) AppendProgress(ctx context.Context, requestID, message string) error {
	return a.s.AppendProgress(ctx, requestID, message)
}
