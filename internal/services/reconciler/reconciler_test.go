package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscriber-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscriber-service/internal/metrics"
)

type MockRefs struct{ mock.Mock }

func (m *MockRefs) PullStreamReference(ctx context.Context, streamID string) (int64, error) {
	args := m.Called(ctx, streamID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefs) PullServerReference(ctx context.Context, serverID string) (int64, error) {
	args := m.Called(ctx, serverID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRefs) ListStreamReferences(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRefs) ListDeletedWithOwnStreams(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockStreams struct{ mock.Mock }

func (m *MockStreams) ExistingStreamIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]struct{}), args.Error(1)
}

type MockDeleter struct{ mock.Mock }

func (m *MockDeleter) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func newService(refs *MockRefs, streams *MockStreams, deleter *MockDeleter) *ReconcilerService {
	return NewReconcilerService(refs, streams, deleter, nil, metrics.New(prometheus.NewRegistry()), newNoopLogger(), time.Hour)
}

func TestReconcilerService_HandleStreamDeleted(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setupMocks func(r *MockRefs)
		wantErr    error
		retryable  bool
	}{
		{
			name: "pull references",
			body: `{"stream_id":"st-1"}`,
			setupMocks: func(r *MockRefs) {
				r.On("PullStreamReference", mock.Anything, "st-1").Return(int64(3), nil).Once()
			},
		},
		{
			name:       "invalid json",
			body:       `{`,
			setupMocks: func(_ *MockRefs) {},
			wantErr:    rabbitmq.ErrMalformed,
		},
		{
			name:       "empty id",
			body:       `{}`,
			setupMocks: func(_ *MockRefs) {},
			wantErr:    rabbitmq.ErrMalformed,
		},
		{
			name: "storage failure is retryable",
			body: `{"stream_id":"st-1"}`,
			setupMocks: func(r *MockRefs) {
				r.On("PullStreamReference", mock.Anything, "st-1").Return(int64(0), errors.New("db down")).Once()
			},
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := &MockRefs{}
			tt.setupMocks(refs)
			svc := newService(refs, &MockStreams{}, &MockDeleter{})

			err := svc.HandleStreamDeleted(context.Background(), []byte(tt.body))
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.retryable:
				require.Error(t, err)
				assert.NotErrorIs(t, err, rabbitmq.ErrMalformed)
			default:
				assert.NoError(t, err)
			}
			refs.AssertExpectations(t)
		})
	}
}

func TestReconcilerService_HandleServerDeleted(t *testing.T) {
	refs := &MockRefs{}
	refs.On("PullServerReference", mock.Anything, "srv-1").Return(int64(2), nil).Once()
	svc := newService(refs, &MockStreams{}, &MockDeleter{})

	require.NoError(t, svc.HandleServerDeleted(context.Background(), []byte(`{"server_id":"srv-1"}`)))
	assert.ErrorIs(t, svc.HandleServerDeleted(context.Background(), []byte(`[]`)), rabbitmq.ErrMalformed)
	refs.AssertExpectations(t)
}

func TestReconcilerService_Sweep(t *testing.T) {
	refs := &MockRefs{}
	streams := &MockStreams{}
	deleter := &MockDeleter{}

	refs.On("ListStreamReferences", mock.Anything).Return([]string{"a", "gone", "b"}, nil).Once()
	streams.On("ExistingStreamIDs", mock.Anything, []string{"a", "gone", "b"}).
		Return(map[string]struct{}{"a": {}, "b": {}}, nil).Once()
	refs.On("PullStreamReference", mock.Anything, "gone").Return(int64(4), nil).Once()
	refs.On("ListDeletedWithOwnStreams", mock.Anything).Return([]string{"u1", "u2"}, nil).Once()
	deleter.On("Delete", mock.Anything, "u1").Return(nil).Once()
	deleter.On("Delete", mock.Anything, "u2").Return(errors.New("catalog down")).Once()

	svc := newService(refs, streams, deleter)
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SweepResult{DanglingRefs: 1, PrunedDocuments: 4, CleanedDeleted: 1, FailedSubscriber: 1}, result)
	refs.AssertExpectations(t)
	streams.AssertExpectations(t)
	deleter.AssertExpectations(t)
}

func TestReconcilerService_SweepBatchesExistenceChecks(t *testing.T) {
	refs := &MockRefs{}
	streams := &MockStreams{}

	all := make([]string, existenceBatchSize+1)
	present := make(map[string]struct{}, len(all))
	for i := range all {
		all[i] = fmt.Sprintf("s%d", i)
		present[all[i]] = struct{}{}
	}

	refs.On("ListStreamReferences", mock.Anything).Return(all, nil).Once()
	streams.On("ExistingStreamIDs", mock.Anything, all[:existenceBatchSize]).Return(present, nil).Once()
	streams.On("ExistingStreamIDs", mock.Anything, all[existenceBatchSize:]).Return(present, nil).Once()
	refs.On("ListDeletedWithOwnStreams", mock.Anything).Return([]string{}, nil).Once()

	svc := newService(refs, streams, &MockDeleter{})
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.DanglingRefs)
	streams.AssertExpectations(t)
}

func TestReconcilerService_SweepStopsOnCancel(t *testing.T) {
	refs := &MockRefs{}
	streams := &MockStreams{}

	refs.On("ListStreamReferences", mock.Anything).Return([]string{"gone"}, nil).Once()
	streams.On("ExistingStreamIDs", mock.Anything, []string{"gone"}).Return(map[string]struct{}{}, nil).Once()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	limiter.Allow()
	svc := NewReconcilerService(refs, streams, &MockDeleter{}, limiter, nil, newNoopLogger(), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Sweep(ctx)
	require.Error(t, err)
	refs.AssertNotCalled(t, "PullStreamReference", mock.Anything, mock.Anything)
}

func TestReconcilerService_RunStopsOnCancel(t *testing.T) {
	refs := &MockRefs{}
	refs.On("ListStreamReferences", mock.Anything).Return([]string{}, nil)
	refs.On("ListDeletedWithOwnStreams", mock.Anything).Return([]string{}, nil)
	streams := &MockStreams{}

	svc := newService(refs, streams, &MockDeleter{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
