package models

import "time"

// Ключи маршрутизации событий.
const (
	RoutingStreamDeleted     = "stream.deleted"
	RoutingServerDeleted     = "server.deleted"
	RoutingSubscriberCreated = "subscriber.created"
	RoutingSubscriberDeleted = "subscriber.deleted"
	RoutingOwnStreamRemoved  = "subscriber.own_stream.removed"
)

// StreamDeleted поток удалён из каталога другим сервисом.
type StreamDeleted struct {
	StreamID string `json:"stream_id" validate:"required"`
}

// ServerDeleted сервер удалён из настроек.
type ServerDeleted struct {
	ServerID string `json:"server_id" validate:"required"`
}

// SubscriberEvent событие жизненного цикла абонента.
type SubscriberEvent struct {
	SubscriberID string    `json:"subscriber_id"`
	Email        string    `json:"email,omitempty"`
	StreamID     string    `json:"stream_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
