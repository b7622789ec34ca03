// Package subscriber содержит агрегат абонента медиа-платформы: реестр устройств,
// набор подписок на потоки, привязанные серверы и жизненный цикл.
//
// Агрегат работает только в памяти и сам следит за своими инвариантами
// (уникальность, квота устройств, каскад при удалении). Сохранение
// в документное хранилище выполняет сервисный слой после каждой мутации.
package subscriber

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscriber-service/internal/lib/password"
)

// Значения по умолчанию.
const (
	DefaultDevicesCount = 10
	DefaultLocale       = "en"
	MaxNameLength       = 64
)

// MaxDate дата окончания подписки «без срока».
var MaxDate = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// Status статус учётной записи абонента.
type Status int

// Статусы абонента. Из StatusDeleted выхода нет.
const (
	StatusNotActive Status = iota
	StatusActive
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusNotActive:
		return "NOT_ACTIVE"
	case StatusActive:
		return "ACTIVE"
	case StatusDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Subscriber корень агрегата. Устройства и связи с потоками принадлежат ему целиком,
// серверы и потоки каталога хранятся только ссылками.
type Subscriber struct {
	ID              string       `bson:"_id" json:"id" validate:"required"`
	Email           string       `bson:"email" json:"email" validate:"required,email,max=64"`
	FirstName       string       `bson:"first_name" json:"first_name" validate:"required,max=64"`
	LastName        string       `bson:"last_name" json:"last_name" validate:"required,max=64"`
	Password        string       `bson:"password" json:"password" validate:"required"`
	CreatedDate     time.Time    `bson:"created_date" json:"created_date"`
	ExpDate         time.Time    `bson:"exp_date" json:"exp_date"`
	Status          Status       `bson:"status" json:"status" validate:"min=0,max=2"`
	Country         string       `bson:"country" json:"country" validate:"required,min=2,max=3"`
	Language        string       `bson:"language" json:"language" validate:"required"`
	Servers         []string     `bson:"servers" json:"servers" validate:"unique"`
	Devices         []Device     `bson:"devices" json:"devices" validate:"dive"`
	MaxDevicesCount int          `bson:"max_devices_count" json:"max_devices_count" validate:"min=0"`
	Streams         []UserStream `bson:"streams" json:"streams" validate:"dive"`
}

// Params данные для регистрации абонента.
type Params struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
	Country   string
	Language  string
	// ExpDate нулевое значение означает MaxDate.
	ExpDate time.Time
	// MaxDevicesCount ноль означает DefaultDevicesCount.
	MaxDevicesCount int
}

// New создаёт абонента со статусом StatusNotActive, пароль хешируется hasher.
func New(p Params, hasher password.Hasher) (*Subscriber, error) {
	hash, err := hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}
	expDate := p.ExpDate
	if expDate.IsZero() {
		expDate = MaxDate
	}
	language := p.Language
	if language == "" {
		language = DefaultLocale
	}
	maxDevices := p.MaxDevicesCount
	if maxDevices == 0 {
		maxDevices = DefaultDevicesCount
	}
	return &Subscriber{
		ID:              uuid.NewString(),
		Email:           p.Email,
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Password:        hash,
		CreatedDate:     time.Now().UTC(),
		ExpDate:         expDate.UTC(),
		Status:          StatusNotActive,
		Country:         p.Country,
		Language:        language,
		Servers:         []string{},
		Devices:         []Device{},
		MaxDevicesCount: maxDevices,
		Streams:         []UserStream{},
	}, nil
}

// CheckPassword проверяет пароль по сохранённому хешу.
func (s *Subscriber) CheckPassword(hasher password.Hasher, raw string) bool {
	return hasher.Verify(s.Password, raw)
}

// CreatedDateUTCMsec время регистрации в миллисекундах от эпохи.
func (s *Subscriber) CreatedDateUTCMsec() int64 {
	return s.CreatedDate.UnixMilli()
}

// ExpirationDateUTCMsec дата окончания подписки в миллисекундах от эпохи.
func (s *Subscriber) ExpirationDateUTCMsec() int64 {
	return s.ExpDate.UnixMilli()
}

// IsExpired проверяет, истекла ли подписка к моменту now.
func (s *Subscriber) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpDate)
}

// IsDeleted сообщает, что абонент мягко удалён.
func (s *Subscriber) IsDeleted() bool {
	return s.Status == StatusDeleted
}

// Activate переводит абонента из NotActive в Active. Повторная активация не ошибка.
func (s *Subscriber) Activate() error {
	switch s.Status {
	case StatusActive:
		return nil
	case StatusNotActive:
		s.Status = StatusActive
		return nil
	default:
		return ErrInvalidTransition
	}
}

// MarkDeleted переводит абонента в StatusDeleted.
// Собственные потоки должны быть сняты до вызова, см. RemoveAllOwnStreams.
func (s *Subscriber) MarkDeleted() {
	s.Status = StatusDeleted
}

// AddServer привязывает сервер.
func (s *Subscriber) AddServer(serverID string) error {
	if s.IsDeleted() {
		return ErrSubscriberDeleted
	}
	if slices.Contains(s.Servers, serverID) {
		return ErrServerExists
	}
	s.Servers = append(s.Servers, serverID)
	return nil
}

// RemoveServer отвязывает сервер. ErrServerNotFound, если сервер не был привязан.
func (s *Subscriber) RemoveServer(serverID string) error {
	i := slices.Index(s.Servers, serverID)
	if i < 0 {
		return ErrServerNotFound
	}
	s.Servers = slices.Delete(s.Servers, i, i+1)
	return nil
}

// AddDevice регистрирует устройство, если квота не исчерпана.
func (s *Subscriber) AddDevice(d Device) error {
	if s.IsDeleted() {
		return ErrSubscriberDeleted
	}
	if len(s.Devices) >= s.MaxDevicesCount {
		return ErrQuotaExceeded
	}
	if s.deviceIndex(d.ID) >= 0 {
		return ErrDeviceExists
	}
	s.Devices = append(s.Devices, d)
	return nil
}

// RemoveDevice удаляет все устройства с данным id.
func (s *Subscriber) RemoveDevice(id string) error {
	before := len(s.Devices)
	s.Devices = slices.DeleteFunc(s.Devices, func(d Device) bool { return d.ID == id })
	if len(s.Devices) == before {
		return ErrDeviceNotFound
	}
	return nil
}

// Device возвращает устройство по id.
func (s *Subscriber) Device(id string) (Device, bool) {
	i := s.deviceIndex(id)
	if i < 0 {
		return Device{}, false
	}
	return s.Devices[i], true
}

func (s *Subscriber) deviceIndex(id string) int {
	return slices.IndexFunc(s.Devices, func(d Device) bool { return d.ID == id })
}
