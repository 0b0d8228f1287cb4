package service

import (
	"errors"
)

// Ошибки сервиса
var (
	ErrValidation  = errors.New("некорректный запрос")
	ErrIdentity    = errors.New("не удалось определить адрес посетителя")
	ErrRateLimited = errors.New("превышен лимит запросов")
	ErrStorage     = errors.New("ошибка хранилища")
)
