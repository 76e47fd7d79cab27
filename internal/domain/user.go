package domain

import (
	"strings"
	"time"
)

// Role определяет набор прав пользователя.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole разбирает роль без учёта регистра.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// User: учётная запись покупателя или администратора.
// Учётные данные хранит внешний identity provider.
type User struct {
	ID        string
	Username  string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// Validate проверяет обязательные поля пользователя.
func (u User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return ErrNameRequired
	}
	if _, err := ParseRole(string(u.Role)); err != nil {
		return err
	}
	return nil
}

// IsAdmin сообщает, есть ли у пользователя права администратора.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
