// Package services сверяет ссылки абонентов с внешними сущностями: снимает ссылки на
// удалённые потоки и серверы и доочищает собственные потоки удалённых абонентов.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscriber-service/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/sl"
	"github.com/magabrotheeeer/subscriber-service/internal/metrics"
	"github.com/magabrotheeeer/subscriber-service/internal/models"
)

const (
	existenceBatchSize = 500
	defaultInterval    = 10 * time.Minute
)

// ReferenceRepository операции хранилища над ссылками во всех документах абонентов.
type ReferenceRepository interface {
	PullStreamReference(ctx context.Context, streamID string) (int64, error)
	PullServerReference(ctx context.Context, serverID string) (int64, error)
	ListStreamReferences(ctx context.Context) ([]string, error)
	ListDeletedWithOwnStreams(ctx context.Context) ([]string, error)
}

// StreamIndex проверка наличия потоков в каталоге.
type StreamIndex interface {
	ExistingStreamIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// SubscriberDeleter повторяет мягкое удаление абонента, доочищая его собственные потоки.
type SubscriberDeleter interface {
	Delete(ctx context.Context, id string) error
}

// SweepResult итог одного прохода сверки.
type SweepResult struct {
	DanglingRefs     int
	PrunedDocuments  int64
	CleanedDeleted   int
	FailedSubscriber int
}

// ReconcilerService обработчик событий удаления и периодическая сверка.
type ReconcilerService struct {
	refs     ReferenceRepository
	streams  StreamIndex
	deleter  SubscriberDeleter
	limiter  *rate.Limiter
	metrics  *metrics.Metrics
	log      *slog.Logger
	interval time.Duration
}

// NewReconcilerService создаёт сервис. limiter ограничивает число исправлений в секунду во время прохода.
func NewReconcilerService(refs ReferenceRepository, streams StreamIndex, deleter SubscriberDeleter,
	limiter *rate.Limiter, m *metrics.Metrics, log *slog.Logger, interval time.Duration,
) *ReconcilerService {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &ReconcilerService{
		refs:     refs,
		streams:  streams,
		deleter:  deleter,
		limiter:  limiter,
		metrics:  m,
		log:      log,
		interval: interval,
	}
}

// HandleStreamDeleted снимает ссылки на поток из события models.StreamDeleted.
func (s *ReconcilerService) HandleStreamDeleted(ctx context.Context, body []byte) error {
	const op = "services.reconciler.HandleStreamDeleted"

	var event models.StreamDeleted
	if err := json.Unmarshal(body, &event); err != nil || event.StreamID == "" {
		return fmt.Errorf("%s: %w", op, rabbitmq.ErrMalformed)
	}
	n, err := s.refs.PullStreamReference(ctx, event.StreamID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.AddPruned(metrics.RefStream, n)
	s.log.Info("stream references pruned", slog.String("stream_id", event.StreamID), slog.Int64("subscribers", n))
	return nil
}

// HandleServerDeleted отвязывает сервер из события models.ServerDeleted.
func (s *ReconcilerService) HandleServerDeleted(ctx context.Context, body []byte) error {
	const op = "services.reconciler.HandleServerDeleted"

	var event models.ServerDeleted
	if err := json.Unmarshal(body, &event); err != nil || event.ServerID == "" {
		return fmt.Errorf("%s: %w", op, rabbitmq.ErrMalformed)
	}
	n, err := s.refs.PullServerReference(ctx, event.ServerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.AddPruned(metrics.RefServer, n)
	s.log.Info("server references pruned", slog.String("server_id", event.ServerID), slog.Int64("subscribers", n))
	return nil
}

// Sweep один проход сверки: снимает ссылки на потоки, которых нет в каталоге,
// и повторяет удаление абонентов, у которых остались собственные потоки.
func (s *ReconcilerService) Sweep(ctx context.Context) (SweepResult, error) {
	const op = "services.reconciler.Sweep"
	var result SweepResult

	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	dangling, err := s.danglingRefs(ctx)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	for _, ref := range dangling {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}
		n, err := s.refs.PullStreamReference(ctx, ref)
		if err != nil {
			s.log.Error("failed to prune stream reference", slog.String("stream_id", ref), sl.Err(err))
			continue
		}
		result.DanglingRefs++
		result.PrunedDocuments += n
		s.metrics.AddPruned(metrics.RefStream, n)
	}

	ids, err := s.refs.ListDeletedWithOwnStreams(ctx)
	if err != nil {
		return result, fmt.Errorf("%s: %w", op, err)
	}
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.deleter.Delete(ctx, id); err != nil {
			result.FailedSubscriber++
			s.log.Error("failed to clean up deleted subscriber", sl.Subscriber(id), sl.Err(err))
			continue
		}
		result.CleanedDeleted++
	}

	return result, nil
}

func (s *ReconcilerService) danglingRefs(ctx context.Context) ([]string, error) {
	refs, err := s.refs.ListStreamReferences(ctx)
	if err != nil {
		return nil, err
	}
	var dangling []string
	for start := 0; start < len(refs); start += existenceBatchSize {
		end := min(start+existenceBatchSize, len(refs))
		batch := refs[start:end]
		existing, err := s.streams.ExistingStreamIDs(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, ref := range batch {
			if _, ok := existing[ref]; !ok {
				dangling = append(dangling, ref)
			}
		}
	}
	return dangling, nil
}

// Run выполняет сверку сразу и затем с заданным интервалом, пока не отменён ctx.
func (s *ReconcilerService) Run(ctx context.Context) {
	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *ReconcilerService) runSweep(ctx context.Context) {
	s.log.Info("starting reference sweep")
	result, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error("reference sweep failed", sl.Err(err))
		return
	}
	s.log.Info("reference sweep finished",
		slog.Int("dangling_refs", result.DanglingRefs),
		slog.Int64("pruned_documents", result.PrunedDocuments),
		slog.Int("cleaned_deleted", result.CleanedDeleted),
		slog.Int("failed_subscribers", result.FailedSubscriber),
	)
}
