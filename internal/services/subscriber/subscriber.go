// Package services содержит сценарии работы с абонентом: каждая операция загружает документ,
// применяет изменение к агрегату и сохраняет результат, после чего сбрасывает кеш и публикует события.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscriber-service/internal/cache"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/password"
	"github.com/magabrotheeeer/subscriber-service/internal/lib/sl"
	"github.com/magabrotheeeer/subscriber-service/internal/metrics"
	"github.com/magabrotheeeer/subscriber-service/internal/models"
	"github.com/magabrotheeeer/subscriber-service/internal/storage"
	"github.com/magabrotheeeer/subscriber-service/internal/subscriber"
)

// ErrInvalidCredentials неверный email или пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// SubscriberRepository документное хранилище абонентов.
type SubscriberRepository interface {
	// GetSubscriber возвращает абонента по id или storage.ErrSubscriberNotFound.
	GetSubscriber(ctx context.Context, id string) (*subscriber.Subscriber, error)
	// GetSubscriberByEmail возвращает абонента по email или storage.ErrSubscriberNotFound.
	GetSubscriberByEmail(ctx context.Context, email string) (*subscriber.Subscriber, error)
	// CreateSubscriber сохраняет нового абонента.
	CreateSubscriber(ctx context.Context, sub *subscriber.Subscriber) error
	// SaveSubscriber заменяет документ абонента.
	SaveSubscriber(ctx context.Context, sub *subscriber.Subscriber) error
}

// StreamCatalog каталог потоков, на которые ссылается абонент.
type StreamCatalog interface {
	// GetStreams возвращает найденные потоки по id.
	GetStreams(ctx context.Context, ids []string) (map[string]*models.Stream, error)
	// DeleteStream удаляет поток, отсутствие потока не ошибка.
	DeleteStream(ctx context.Context, id string) error
}

// Cache описывает методы для кеширования документов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// EventPublisher публикует события жизненного цикла абонента.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// SessionManager отмечает вход и выход абонента. Реализация принадлежит транспортному слою.
type SessionManager interface {
	MarkLoggedIn(ctx context.Context, subscriberID string) error
	MarkLoggedOut(ctx context.Context, subscriberID string) error
}

type rehasher interface {
	NeedsRehash(hash string) bool
}

// Deps зависимости сервиса. Cache, Events, Sessions и Metrics необязательны.
type Deps struct {
	Repo     SubscriberRepository
	Catalog  StreamCatalog
	Cache    Cache
	Events   EventPublisher
	Sessions SessionManager
	Hasher   password.Hasher
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// Options поведение, выбираемое конфигом.
type Options struct {
	MaxDevicesCount int
	RemovalMode     subscriber.RemovalMode
	DanglingPolicy  subscriber.DanglingPolicy
	CacheTTL        time.Duration
	LBAddress       string
}

// SubscriberService реализует сценарии работы с абонентом.
type SubscriberService struct {
	repo     SubscriberRepository
	catalog  StreamCatalog
	cache    Cache
	events   EventPublisher
	sessions SessionManager
	hasher   password.Hasher
	metrics  *metrics.Metrics
	log      *slog.Logger
	opts     Options
}

// NewSubscriberService создаёт сервис.
func NewSubscriberService(deps Deps, opts Options) *SubscriberService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	return &SubscriberService{
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		cache:    deps.Cache,
		events:   deps.Events,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		metrics:  deps.Metrics,
		log:      deps.Log,
		opts:     opts,
	}
}

// Register создаёт абонента со статусом NotActive.
func (s *SubscriberService) Register(ctx context.Context, p subscriber.Params) (sub *subscriber.Subscriber, err error) {
	const op = "services.subscriber.Register"
	defer func() { s.metrics.ObserveOperation("register", err) }()

	if p.MaxDevicesCount == 0 {
		p.MaxDevicesCount = s.opts.MaxDevicesCount
	}
	sub, err = subscriber.New(p, s.hasher)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.repo.CreateSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscriber registered", sl.Subscriber(sub.ID))
	s.publish(ctx, models.RoutingSubscriberCreated, models.SubscriberEvent{
		SubscriberID: sub.ID,
		Email:        sub.Email,
		OccurredAt:   time.Now().UTC(),
	})
	return sub, nil
}

// Login проверяет пароль, при необходимости перехеширует старый хеш и отмечает вход.
func (s *SubscriberService) Login(ctx context.Context, email, raw string) (sub *subscriber.Subscriber, err error) {
	const op = "services.subscriber.Login"
	defer func() { s.metrics.ObserveOperation("login", err) }()

	sub, err = s.repo.GetSubscriberByEmail(ctx, email)
	if errors.Is(err, storage.ErrSubscriberNotFound) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !sub.CheckPassword(s.hasher, raw) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if sub.IsDeleted() {
		return nil, fmt.Errorf("%s: %w", op, subscriber.ErrSubscriberDeleted)
	}

	if rh, ok := s.hasher.(rehasher); ok && rh.NeedsRehash(sub.Password) {
		s.upgradePassword(ctx, sub, raw)
	}

	if s.sessions != nil {
		if err = s.sessions.MarkLoggedIn(ctx, sub.ID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return sub, nil
}

func (s *SubscriberService) upgradePassword(ctx context.Context, sub *subscriber.Subscriber, raw string) {
	log := s.log.With(sl.Op("services.subscriber.upgradePassword"), sl.Subscriber(sub.ID))

	hash, err := s.hasher.Hash(raw)
	if err != nil {
		log.Warn("failed to rehash password", sl.Err(err))
		return
	}
	old := sub.Password
	sub.Password = hash
	if err := s.repo.SaveSubscriber(ctx, sub); err != nil {
		sub.Password = old
		log.Warn("failed to save upgraded password hash", sl.Err(err))
		return
	}
	s.invalidate(ctx, sub.ID)
	log.Info("legacy password hash upgraded")
}

// Logout отмечает выход абонента.
func (s *SubscriberService) Logout(ctx context.Context, id string) error {
	const op = "services.subscriber.Logout"
	if s.sessions == nil {
		return nil
	}
	if err := s.sessions.MarkLoggedOut(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get возвращает абонента, сначала из кеша.
func (s *SubscriberService) Get(ctx context.Context, id string) (*subscriber.Subscriber, error) {
	const op = "services.subscriber.Get"

	key := cache.SubscriberKey(id)
	if s.cache != nil {
		var cached subscriber.Subscriber
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read from cache", slog.String("key", key), sl.Err(err))
		}
		if found {
			return &cached, nil
		}
	}

	sub, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, sub, s.opts.CacheTTL); err != nil {
			s.log.Warn("failed to add to cache", slog.String("key", key), sl.Err(err))
		}
	}
	return sub, nil
}

// Activate переводит абонента из NotActive в Active.
func (s *SubscriberService) Activate(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, "activate", id, func(sub *subscriber.Subscriber) error {
		return sub.Activate()
	})
	return err
}

// AddServer привязывает сервер.
func (s *SubscriberService) AddServer(ctx context.Context, id, serverID string) error {
	_, err := s.mutate(ctx, "add_server", id, func(sub *subscriber.Subscriber) error {
		return sub.AddServer(serverID)
	})
	return err
}

// RemoveServer отвязывает сервер.
func (s *SubscriberService) RemoveServer(ctx context.Context, id, serverID string) error {
	_, err := s.mutate(ctx, "remove_server", id, func(sub *subscriber.Subscriber) error {
		return sub.RemoveServer(serverID)
	})
	return err
}

// AddDevice регистрирует новое устройство с именем name. Пустое имя заменяется на DefaultDeviceName.
func (s *SubscriberService) AddDevice(ctx context.Context, id, name string) (subscriber.Device, error) {
	d := subscriber.NewDevice(name)
	_, err := s.mutate(ctx, "add_device", id, func(sub *subscriber.Subscriber) error {
		return sub.AddDevice(d)
	})
	if err != nil {
		return subscriber.Device{}, err
	}
	return d, nil
}

// RemoveDevice удаляет устройство.
func (s *SubscriberService) RemoveDevice(ctx context.Context, id, deviceID string) error {
	_, err := s.mutate(ctx, "remove_device", id, func(sub *subscriber.Subscriber) error {
		return sub.RemoveDevice(deviceID)
	})
	return err
}

// AddOfficialStream подписывает абонента на официальный поток. false, если подписка уже была.
func (s *SubscriberService) AddOfficialStream(ctx context.Context, id, ref string) (bool, error) {
	return s.addStream(ctx, "add_official_stream", id, ref, (*subscriber.Subscriber).AddOfficialStream)
}

// AddOwnStream связывает абонента с его собственным потоком. false, если связь уже была.
func (s *SubscriberService) AddOwnStream(ctx context.Context, id, ref string) (bool, error) {
	return s.addStream(ctx, "add_own_stream", id, ref, (*subscriber.Subscriber).AddOwnStream)
}

func (s *SubscriberService) addStream(ctx context.Context, opName, id, ref string,
	add func(*subscriber.Subscriber, string) (bool, error),
) (bool, error) {
	var added bool
	_, err := s.mutate(ctx, opName, id, func(sub *subscriber.Subscriber) error {
		var err error
		added, err = add(sub, ref)
		if err == nil && !added {
			return errNoChange
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// RemoveOfficialStream снимает подписку на поток согласно настроенному RemovalMode.
func (s *SubscriberService) RemoveOfficialStream(ctx context.Context, id, ref string) error {
	_, err := s.mutate(ctx, "remove_official_stream", id, func(sub *subscriber.Subscriber) error {
		if s.opts.RemovalMode == subscriber.RemoveAnyMatch && sub.HasOwnStream(ref) {
			s.log.Warn("own stream association removed as official, catalog entry kept",
				sl.Subscriber(sub.ID), slog.String("stream_id", ref))
		}
		return sub.RemoveOfficialStream(ref, s.opts.RemovalMode)
	})
	return err
}

// RemoveOwnStream удаляет собственный поток из каталога и снимает связь с ним.
// Поток удаляется первым: при сбое между шагами остаётся висячая связь,
// которую снимает повтор или сверка, но не поток без владельца.
func (s *SubscriberService) RemoveOwnStream(ctx context.Context, id, ref string) (err error) {
	const op = "services.subscriber.RemoveOwnStream"
	defer func() { s.metrics.ObserveOperation("remove_own_stream", err) }()

	sub, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !sub.HasOwnStream(ref) {
		return fmt.Errorf("%s: %w", op, subscriber.ErrStreamNotFound)
	}
	if err = s.catalog.DeleteStream(ctx, ref); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = sub.RemoveOwnStream(ref); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err = s.repo.SaveSubscriber(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, id)
	s.metrics.AddOwnStreamsDeleted(1)
	s.publish(ctx, models.RoutingOwnStreamRemoved, models.SubscriberEvent{
		SubscriberID: id,
		StreamID:     ref,
		OccurredAt:   time.Now().UTC(),
	})
	return nil
}

// RemoveAllOwnStreams удаляет все собственные потоки абонента и возвращает их id.
func (s *SubscriberService) RemoveAllOwnStreams(ctx context.Context, id string) (refs []string, err error) {
	const op = "services.subscriber.RemoveAllOwnStreams"
	defer func() { s.metrics.ObserveOperation("remove_all_own_streams", err) }()

	sub, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	refs, err = s.dropOwnStreams(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(refs) == 0 {
		return refs, nil
	}
	if err = s.repo.SaveSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, id)
	return refs, nil
}

// dropOwnStreams удаляет из каталога собственные потоки абонента и снимает связи в памяти.
// При ошибке удаления документ не меняется.
func (s *SubscriberService) dropOwnStreams(ctx context.Context, sub *subscriber.Subscriber) ([]string, error) {
	own := sub.OwnStreams()
	for _, us := range own {
		if err := s.catalog.DeleteStream(ctx, us.StreamRef); err != nil {
			return nil, err
		}
	}
	refs := sub.RemoveAllOwnStreams()
	s.metrics.AddOwnStreamsDeleted(len(refs))
	return refs, nil
}

// Delete мягко удаляет абонента: собственные потоки удаляются, статус становится Deleted.
// Официальные подписки, устройства и серверы остаются. Повторный вызов доочищает потоки.
func (s *SubscriberService) Delete(ctx context.Context, id string) (err error) {
	const op = "services.subscriber.Delete"
	defer func() { s.metrics.ObserveOperation("delete", err) }()

	sub, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	wasDeleted := sub.IsDeleted()
	if wasDeleted && len(sub.OwnStreams()) == 0 {
		return nil
	}

	if _, err = s.dropOwnStreams(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	sub.MarkDeleted()
	if err = s.repo.SaveSubscriber(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, id)

	if wasDeleted {
		return nil
	}
	s.log.Info("subscriber deleted", sl.Subscriber(id))
	if s.sessions != nil {
		if err := s.sessions.MarkLoggedOut(ctx, id); err != nil {
			s.log.Warn("failed to close session", sl.Subscriber(id), sl.Err(err))
		}
	}
	s.publish(ctx, models.RoutingSubscriberDeleted, models.SubscriberEvent{
		SubscriberID: id,
		Email:        sub.Email,
		OccurredAt:   time.Now().UTC(),
	})
	return nil
}

// SetFavorite отмечает поток избранным.
func (s *SubscriberService) SetFavorite(ctx context.Context, id, ref string, favorite bool) error {
	_, err := s.mutate(ctx, "set_favorite", id, func(sub *subscriber.Subscriber) error {
		return sub.SetFavorite(ref, favorite)
	})
	return err
}

// SetRecent запоминает время последнего просмотра потока.
func (s *SubscriberService) SetRecent(ctx context.Context, id, ref string, at time.Time) error {
	_, err := s.mutate(ctx, "set_recent", id, func(sub *subscriber.Subscriber) error {
		return sub.SetRecent(ref, at)
	})
	return err
}

// SetInterruptionTime запоминает позицию просмотра в миллисекундах.
func (s *SubscriberService) SetInterruptionTime(ctx context.Context, id, ref string, msec int) error {
	_, err := s.mutate(ctx, "set_interruption_time", id, func(sub *subscriber.Subscriber) error {
		return sub.SetInterruptionTime(ref, msec)
	})
	return err
}

// GeneratePlaylist собирает плейлист абонента id для устройства deviceID.
// Пустой lbAddress заменяется адресом балансировщика из настроек.
// Документ читается из хранилища мимо кеша: сверка снимает ссылки напрямую в хранилище.
func (s *SubscriberService) GeneratePlaylist(ctx context.Context, id, deviceID, lbAddress string) (pl subscriber.Playlist, err error) {
	const op = "services.subscriber.GeneratePlaylist"
	defer func() { s.metrics.ObserveOperation("generate_playlist", err) }()

	if lbAddress == "" {
		lbAddress = s.opts.LBAddress
	}
	sub, err := s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return subscriber.Playlist{}, fmt.Errorf("%s: %w", op, err)
	}
	if sub.IsDeleted() {
		return subscriber.Playlist{}, fmt.Errorf("%s: %w", op, subscriber.ErrSubscriberDeleted)
	}

	found, err := s.catalog.GetStreams(ctx, sub.StreamRefs())
	if err != nil {
		return subscriber.Playlist{}, fmt.Errorf("%s: %w", op, err)
	}
	sources := make(map[string]subscriber.ManifestSource, len(found))
	for sid, st := range found {
		sources[sid] = st
	}

	pl, err = sub.GeneratePlaylist(deviceID, lbAddress, sources, s.opts.DanglingPolicy)
	if err != nil {
		return subscriber.Playlist{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(pl.Skipped) > 0 {
		s.metrics.AddDanglingSkipped(len(pl.Skipped))
		s.log.Warn("dangling stream references skipped",
			sl.Subscriber(id), slog.Any("stream_ids", pl.Skipped))
	}
	return pl, nil
}

// errNoChange мутация ничего не изменила, сохранять нечего.
var errNoChange = errors.New("no change")

// mutate загружает абонента, применяет fn и сохраняет результат.
// Если fn вернула ошибку, документ не сохраняется.
func (s *SubscriberService) mutate(ctx context.Context, opName, id string, fn func(*subscriber.Subscriber) error) (sub *subscriber.Subscriber, err error) {
	op := "services.subscriber." + opName
	defer func() { s.metrics.ObserveOperation(opName, err) }()

	sub, err = s.repo.GetSubscriber(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = fn(sub); err != nil {
		if errors.Is(err, errNoChange) {
			return sub, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = s.repo.SaveSubscriber(ctx, sub); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, id)
	return sub, nil
}

func (s *SubscriberService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	key := cache.SubscriberKey(id)
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", key), sl.Err(err))
	}
}

func (s *SubscriberService) publish(ctx context.Context, routingKey string, event models.SubscriberEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		s.log.Warn("failed to publish event", slog.String("routing_key", routingKey), sl.Err(err))
	}
}
