package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state: таблицы in-memory хранилища.
type state struct {
	users       map[string]domain.User
	categories  map[string]domain.Category
	products    map[string]domain.Product
	carts       map[string]domain.Cart // ключ: user_id
	orders      map[string]domain.Order
	orderNumber map[string]string
	timeline    map[string][]domain.TimelineEvent
	outbox      map[string]*outboxRecord
	outboxSeq   int64
}

// Store: in-memory реализация domain.Store.
// Транзакция держит эксклюзивную блокировку на всё хранилище до фиксации,
// поэтому читатели никогда не видят незафиксированных изменений.
// Откат выполняется по журналу обратных операций.
type Store struct {
	mu sync.RWMutex
	st state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: state{
		users:       make(map[string]domain.User),
		categories:  make(map[string]domain.Category),
		products:    make(map[string]domain.Product),
		carts:       make(map[string]domain.Cart),
		orders:      make(map[string]domain.Order),
		orderNumber: make(map[string]string),
		timeline:    make(map[string][]domain.TimelineEvent),
		outbox:      make(map[string]*outboxRecord),
	}}
}

// undoLog накапливает обратные операции транзакции.
type undoLog struct {
	ops []func(st *state)
}

func (l *undoLog) rollback(st *state) {
	for i := len(l.ops) - 1; i >= 0; i-- {
		l.ops[i](st)
	}
	l.ops = nil
}

// scope привязывает репозиторий к хранилищу и, опционально, к транзакции.
type scope struct {
	s  *Store
	tx *undoLog
}

func (sc scope) view(fn func(st *state) error) error {
	if sc.tx == nil {
		sc.s.mu.RLock()
		defer sc.s.mu.RUnlock()
	}
	return fn(&sc.s.st)
}

// update применяет изменение. fn возвращает обратную операцию для отката.
func (sc scope) update(fn func(st *state) (func(st *state), error)) error {
	if sc.tx == nil {
		sc.s.mu.Lock()
		defer sc.s.mu.Unlock()
	}
	undo, err := fn(&sc.s.st)
	if err != nil {
		return err
	}
	if sc.tx != nil && undo != nil {
		sc.tx.ops = append(sc.tx.ops, undo)
	}
	return nil
}

// repositories: набор репозиториев в одном scope.
type repositories struct {
	sc scope
}

func (r repositories) Users() domain.UserRepository {
	return userRepository{r.sc}
}

func (r repositories) Categories() domain.CategoryRepository {
	return categoryRepository{r.sc}
}

func (r repositories) Products() domain.ProductRepository {
	return productRepository{r.sc}
}

func (r repositories) Carts() domain.CartRepository {
	return cartRepository{r.sc}
}

func (r repositories) Orders() domain.OrderRepository {
	return orderRepository{r.sc}
}

func (r repositories) Timeline() domain.TimelineRepository {
	return timelineRepository{r.sc}
}

func (r repositories) Outbox() domain.OutboxRepository {
	return outboxRepository{r.sc}
}

func (s *Store) Users() domain.UserRepository {
	return s.auto().Users()
}

func (s *Store) Categories() domain.CategoryRepository {
	return s.auto().Categories()
}

func (s *Store) Products() domain.ProductRepository {
	return s.auto().Products()
}

func (s *Store) Carts() domain.CartRepository {
	return s.auto().Carts()
}

func (s *Store) Orders() domain.OrderRepository {
	return s.auto().Orders()
}

func (s *Store) Timeline() domain.TimelineRepository {
	return s.auto().Timeline()
}

func (s *Store) Outbox() domain.OutboxRepository {
	return s.auto().Outbox()
}

func (s *Store) auto() repositories {
	return repositories{scope{s: s}}
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// WithinTx выполняет fn в транзакции. Репозитории вне tx внутри fn использовать нельзя.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			log.rollback(&s.st)
			panic(p)
		}
		if err != nil {
			log.rollback(&s.st)
		}
	}()

	if err = fn(ctx, repositories{scope{s: s, tx: log}}); err != nil {
		return err
	}
	return ctx.Err()
}

var _ domain.Store = (*Store)(nil)
