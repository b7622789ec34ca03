package subscriber

import "errors"

var (
	// ErrQuotaExceeded реестр устройств заполнен.
	ErrQuotaExceeded = errors.New("device quota exceeded")
	// ErrDeviceExists устройство с таким id уже зарегистрировано.
	ErrDeviceExists = errors.New("device already registered")
	// ErrDeviceNotFound устройство с таким id не найдено.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrStreamNotFound у абонента нет подходящей связи с потоком.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrServerExists сервер уже привязан к абоненту.
	ErrServerExists = errors.New("server already attached")
	// ErrServerNotFound сервер не привязан к абоненту.
	ErrServerNotFound = errors.New("server not found")
	// ErrDanglingReference поток из подписки отсутствует в каталоге.
	ErrDanglingReference = errors.New("dangling stream reference")
	// ErrSubscriberDeleted абонент удалён, изменения запрещены.
	ErrSubscriberDeleted = errors.New("subscriber is deleted")
	// ErrInvalidTransition недопустимый переход статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidInterruptionTime позиция просмотра вне допустимого диапазона.
	ErrInvalidInterruptionTime = errors.New("interruption time out of range")
)
