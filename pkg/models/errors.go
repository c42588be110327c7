package models

import "errors"

// Категории ошибок движка. Сервисы оборачивают их через fmt.Errorf с %w,
// вызывающий слой различает категории через errors.Is.
var (
	// ErrNotFound — запрошенная сущность не существует, повтор бесполезен
	ErrNotFound = errors.New("запись не найдена")

	// ErrInvalidState — операция над сущностью в неподходящем статусе
	ErrInvalidState = errors.New("недопустимый статус")

	// ErrValidation — некорректные входные данные, нужно исправить запрос
	ErrValidation = errors.New("ошибка валидации")

	// ErrConflict — конкурентный конфликт, операцию можно повторить целиком
	ErrConflict = errors.New("конфликт конкурентного доступа")

	// ErrForbidden — у вызывающего нет нужной роли
	ErrForbidden = errors.New("доступ запрещен")
)
