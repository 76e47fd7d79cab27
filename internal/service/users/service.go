// Package users ведёт учётные записи покупателей и администраторов.
package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Input: данные новой учётной записи. Пустая роль означает USER.
type Input struct {
	Username string
	Email    string
	Role     string
}

// Service создаёт и находит пользователей.
type Service struct {
	repo   domain.UserRepository
	logger *log.Entry
}

func NewService(repo domain.UserRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "user-service")
	}
	return &Service{repo: repo, logger: logger}
}

// Create регистрирует пользователя. Имя уникально без учёта регистра.
func (s *Service) Create(ctx context.Context, in Input) (domain.User, error) {
	role := domain.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := domain.ParseRole(in.Role)
		if err != nil {
			return domain.User{}, err
		}
		role = parsed
	}

	user := domain.User{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(in.Username),
		Email:     strings.TrimSpace(in.Email),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, err
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return domain.User{}, err
	}
	s.logger.WithFields(log.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")
	return user, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.repo.GetByUsername(ctx, strings.TrimSpace(username))
}
