// Package storage содержит общие для всех бэкендов хранилища ошибки
// и проверку полей документа перед сохранением.
package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator"
)

var (
	// ErrSubscriberNotFound документ абонента не найден.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrSubscriberExists абонент с таким email уже есть.
	ErrSubscriberExists = errors.New("subscriber already exists")
	// ErrStreamNotFound поток каталога не найден.
	ErrStreamNotFound = errors.New("stream not found")
)

// ValidationError нарушено ограничение поля документа.
type ValidationError struct {
	Fields []string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

var validate = validator.New()

// Validate проверяет документ по тегам validate. Ошибки валидатора
// превращаются в *ValidationError со списком полей.
func Validate(doc any) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return &ValidationError{Fields: fields, err: err}
}
