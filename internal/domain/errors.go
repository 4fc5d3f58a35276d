package domain

import "errors"

// Таксономия ошибок ядра очереди.
var (
	// ErrConflict — переход запрошен для элемента не в ожидаемом исходном статусе.
	ErrConflict = errors.New("элемент не в ожидаемом статусе")
	// ErrNotFound — элемент отсутствует в хранилище.
	ErrNotFound = errors.New("элемент не найден")
	// ErrValidation — некорректный запрос, отклонён до каких-либо мутаций.
	ErrValidation = errors.New("некорректный запрос")
	// ErrUpstream — внешний сервис оценки недоступен.
	ErrUpstream = errors.New("внешний сервис недоступен")
)
