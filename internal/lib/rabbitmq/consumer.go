package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscriber-service/internal/lib/sl"
)

const prefetchCount = 10

// ErrMalformed сообщение невозможно обработать, повторная доставка бессмысленна.
var ErrMalformed = errors.New("malformed message")

// ConsumerMessage запускает потребителя очереди queueName. Не более prefetchCount
// сообщений обрабатываются одновременно. Успех подтверждается ack, ошибка возвращает
// сообщение в очередь, кроме ErrMalformed, которое отбрасывается.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go dispatch(ctx, delivery, log.With(slog.String("queue", queueName)), handler)
	return nil
}

// dispatch раздаёт доставки обработчикам, пока открыт канал и не отменён ctx.
// Доставка, для которой не нашлось слота до отмены, возвращается в очередь.
func dispatch(ctx context.Context, delivery <-chan amqp.Delivery, log *slog.Logger, handler func([]byte) error) {
	sem := make(chan struct{}, prefetchCount)
	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				if err := d.Nack(false, true); err != nil {
					log.Error("failed to nack message", sl.Err(err))
				}
				return
			}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				if err := handler(d.Body); err != nil {
					requeue := !errors.Is(err, ErrMalformed)
					log.Error("failed to handle message", sl.Err(err), slog.Bool("requeue", requeue))
					if nackErr := d.Nack(false, requeue); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					return
				}
				if ackErr := d.Ack(false); ackErr != nil {
					log.Error("failed to ack message", sl.Err(ackErr))
				}
			}(d)
		case <-ctx.Done():
			return
		}
	}
}
