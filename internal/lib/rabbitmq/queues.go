package rabbitmq

import "github.com/magabrotheeeer/subscriber-service/internal/models"

// QueueConfig очередь и ключ, по которому она привязана к exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// DeletionQueues очереди событий удаления потоков и серверов, которые разбирает сверка ссылок.
func DeletionQueues(streamsQueue, serversQueue string) []QueueConfig {
	return []QueueConfig{
		{QueueName: streamsQueue, RoutingKey: models.RoutingStreamDeleted},
		{QueueName: serversQueue, RoutingKey: models.RoutingServerDeleted},
	}
}
