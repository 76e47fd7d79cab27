package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCartNotFound возвращается, если у пользователя ещё нет корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrCategoryNotFound возвращается, если категория не найдена.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrProductNotInCart возвращается при удалении товара, которого нет в корзине.
	ErrProductNotInCart = errors.New("product not in cart")

	// ErrEmptyCart запрещает оформление заказа из пустой корзины.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock: остатка товара не хватает для запрошенного количества.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderCannotBeCancelled: пользователь может отменить только заказ в статусе PENDING.
	ErrOrderCannotBeCancelled = errors.New("order cannot be cancelled")
	// ErrOrderAlreadyDelivered: доставленный заказ отменить нельзя.
	ErrOrderAlreadyDelivered = errors.New("order already delivered")
	// ErrCategoryHasProducts запрещает удаление категории с товарами.
	ErrCategoryHasProducts = errors.New("category still has products")
	// ErrUsernameTaken: имя пользователя уже занято.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrOrderNumberTaken: коллизия номера заказа в хранилище.
	ErrOrderNumberTaken = errors.New("order number already taken")

	// ErrAccessDenied: заказ принадлежит другому пользователю.
	ErrAccessDenied = errors.New("access denied")

	// ErrValidation: общий корень ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrShippingAddressRequired: адрес доставки обязателен.
	ErrShippingAddressRequired = fmt.Errorf("%w: shipping address is required", ErrValidation)
	// ErrQuantityInvalid: количество должно быть больше нуля.
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	// ErrPriceNegative: цена не может быть отрицательной.
	ErrPriceNegative = fmt.Errorf("%w: price must be non-negative", ErrValidation)
	// ErrPricePrecision: цена хранится с точностью до копеек.
	ErrPricePrecision = fmt.Errorf("%w: price must have at most 2 decimal places", ErrValidation)
	// ErrStockNegative: остаток не может быть отрицательным.
	ErrStockNegative = fmt.Errorf("%w: stock must be non-negative", ErrValidation)
	// ErrNameRequired: у товара, категории и пользователя должно быть имя.
	ErrNameRequired = fmt.Errorf("%w: name is required", ErrValidation)
	// ErrInvalidOrderStatus: неизвестный статус заказа.
	ErrInvalidOrderStatus = fmt.Errorf("%w: unknown order status", ErrValidation)
	// ErrInvalidRole: неизвестная роль пользователя.
	ErrInvalidRole = fmt.Errorf("%w: unknown role", ErrValidation)
	// ErrInvalidDateRange: начало периода позже конца.
	ErrInvalidDateRange = fmt.Errorf("%w: start must not be after end", ErrValidation)

	// ErrLinesRequired: заказ без позиций.
	ErrLinesRequired = errors.New("order must contain at least one line")
	// ErrLineTotalMismatch: сумма позиции не равна qty * unit price.
	ErrLineTotalMismatch = errors.New("order line total does not match quantity * unit price")
	// ErrAmountMismatch: сумма заказа не равна сумме позиций.
	ErrAmountMismatch = errors.New("order total does not match lines sum")
	// ErrUserRequired: у заказа нет владельца.
	ErrUserRequired = errors.New("order user_id is required")
	// ErrOrderNumberRequired: у заказа нет номера.
	ErrOrderNumberRequired = errors.New("order number is required")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrProjectionUnavailable: поисковое хранилище временно недоступно, событие нужно повторить позже.
	ErrProjectionUnavailable = errors.New("search projection unavailable")
	// ErrUnknownAggregate: outbox-сообщение с неизвестным типом агрегата.
	ErrUnknownAggregate = errors.New("unknown projection aggregate")

	// ErrIdempotencyKeyRequired: пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: пустой хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound: ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists: ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyInFlight: запрос с тем же ключом ещё выполняется.
	ErrIdempotencyInFlight = errors.New("request with the same idempotency key is still processing")
)

// InsufficientStockError описывает нехватку остатка по конкретному товару.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// Unwrap позволяет сравнивать ошибку через errors.Is(err, ErrInsufficientStock).
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// IsNotFound сообщает, что запрошенная сущность отсутствует.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCartNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrProductNotInCart)
}

// IsConflict сообщает о нарушении бизнес-правила над текущим состоянием.
func IsConflict(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOrderCannotBeCancelled) ||
		errors.Is(err, ErrOrderAlreadyDelivered) ||
		errors.Is(err, ErrCategoryHasProducts) ||
		errors.Is(err, ErrUsernameTaken) ||
		errors.Is(err, ErrOrderNumberTaken) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInFlight)
}

// IsAccessDenied сообщает о несовпадении владельца ресурса.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsValidation сообщает о некорректных входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
