package subscriber

import (
	"time"

	"github.com/google/uuid"
)

// Ограничения на имя устройства.
const (
	DefaultDeviceName   = "Device"
	MinDeviceNameLength = 3
	MaxDeviceNameLength = 32
)

// DeviceStatus статус устройства воспроизведения.
type DeviceStatus int

// Статусы устройства.
const (
	DeviceNotActive DeviceStatus = iota
	DeviceActive
	DeviceBanned
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceNotActive:
		return "NOT_ACTIVE"
	case DeviceActive:
		return "ACTIVE"
	case DeviceBanned:
		return "BANNED"
	default:
		return "UNKNOWN"
	}
}

// Device зарегистрированное устройство воспроизведения.
// Хранится только внутри документа абонента.
type Device struct {
	ID          string       `bson:"id" json:"id" validate:"required"`
	Name        string       `bson:"name" json:"name" validate:"required,min=3,max=32"`
	Status      DeviceStatus `bson:"status" json:"status" validate:"min=0,max=2"`
	CreatedDate time.Time    `bson:"created_date" json:"created_date"`
}

// NewDevice создаёт устройство с новым id. Пустое имя заменяется на DefaultDeviceName.
func NewDevice(name string) Device {
	if name == "" {
		name = DefaultDeviceName
	}
	return Device{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      DeviceNotActive,
		CreatedDate: time.Now().UTC(),
	}
}

// CreatedDateUTCMsec время создания в миллисекундах от эпохи.
func (d Device) CreatedDateUTCMsec() int64 {
	return d.CreatedDate.UnixMilli()
}
