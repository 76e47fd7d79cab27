package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/i18n"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	ctxUser     = "storefront.user"
	ctxLanguage = "storefront.language"

	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
)

// TokenVerifier проверяет bearer-токен.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	}
}

func httpMetrics(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := m.Begin()
		c.Next()
		m.Observe(started, c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}

// authenticate проверяет токен и загружает пользователя. Роль берётся из хранилища, а не из токена.
func (h *handler) authenticate(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		abortUnauthorized(c, "missing or malformed Authorization header")
		return
	}
	claims, err := h.svc.Tokens.Verify(token)
	if err != nil {
		h.logger.WithError(err).Debug("token rejected")
		abortUnauthorized(c, "invalid token")
		return
	}
	user, err := h.svc.Users.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		if domain.IsNotFound(err) {
			abortUnauthorized(c, "unknown user")
			return
		}
		h.fail(c, err)
		return
	}

	c.Set(ctxUser, user)
	c.Set(ctxLanguage, h.svc.Localizer.Match(c.GetHeader("Accept-Language")))
	c.Next()
}

func requireAdmin(c *gin.Context) {
	if !currentUser(c).IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Code: codeForbidden, Message: "admin role required"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) domain.User {
	user, _ := c.MustGet(ctxUser).(domain.User)
	return user
}

func requestLanguage(c *gin.Context) language.Tag {
	if tag, ok := c.Get(ctxLanguage); ok {
		if t, ok := tag.(language.Tag); ok {
			return t
		}
	}
	return i18n.DefaultLanguage
}

type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Без заголовка запрос выполняется как обычно.
func (h *handler) idempotent(operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerIdempotencyKey)
		if key == "" || h.svc.Idempotency == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.fail(c, invalidRequest("unreadable request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := idempotency.RequestHash(operation, currentUser(c).ID, body)
		stored, err := h.svc.Idempotency.Begin(c.Request.Context(), key, hash)
		if err != nil {
			h.fail(c, err)
			return
		}
		if stored != nil {
			c.Header(headerReplayed, "true")
			c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		h.svc.Idempotency.Finish(context.WithoutCancel(c.Request.Context()), key, recorder.Status(), recorder.body.Bytes())
	}
}
