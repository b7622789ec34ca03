// Package sl содержит вспомогательные функции для работы с логгером slog.
// Основная цель: упростить формирование структурированных полей лога.
package sl

import "log/slog"

// Err возвращает slog.Attr с ключом "error" и значением текста ошибки.
//
// Пример:
//
//	log.Error("failed to save subscriber", sl.Err(err))
func Err(err error) slog.Attr {
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Op помечает запись лога названием операции.
func Op(op string) slog.Attr {
	return slog.String("op", op)
}

// Subscriber помечает запись лога идентификатором абонента.
func Subscriber(id string) slog.Attr {
	return slog.String("subscriber_id", id)
}
