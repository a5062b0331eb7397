// Package memory содержит in-memory реализацию хранилища для локальной разработки и тестов.
package memory

import (
	"context"
	"errors"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

var errReadOnly = errors.New("memory: write inside read-only transaction")

type sequences struct {
	member    int64
	item      int64
	tag       int64
	order     int64
	orderItem int64
	cart      int64
	cartItem  int64
	outbox    int64
}

// state хранит снимок всех таблиц. Значения в картах неизменяемы:
// запись заменяет значение целиком, поэтому для транзакции достаточно
// поверхностной копии карт.
type state struct {
	members   map[int64]domain.Member
	items     map[int64]domain.Item
	tags      map[int64]domain.Tag
	itemTags  map[int64][]int64
	images    map[int64]string
	orders    map[int64]domain.Order
	carts     map[int64]domain.Cart
	cartItems map[int64]domain.CartItem
	outbox    map[string]outboxRecord
	seq       sequences
}

func newState() *state {
	return &state{
		members:   make(map[int64]domain.Member),
		items:     make(map[int64]domain.Item),
		tags:      make(map[int64]domain.Tag),
		itemTags:  make(map[int64][]int64),
		images:    make(map[int64]string),
		orders:    make(map[int64]domain.Order),
		carts:     make(map[int64]domain.Cart),
		cartItems: make(map[int64]domain.CartItem),
		outbox:    make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	return &state{
		members:   maps.Clone(s.members),
		items:     maps.Clone(s.items),
		tags:      maps.Clone(s.tags),
		itemTags:  maps.Clone(s.itemTags),
		images:    maps.Clone(s.images),
		orders:    maps.Clone(s.orders),
		carts:     maps.Clone(s.carts),
		cartItems: maps.Clone(s.cartItems),
		outbox:    maps.Clone(s.outbox),
		seq:       s.seq,
	}
}

// Store хранит все данные в памяти процесса.
// Писатели сериализуются мьютексом и работают с копией состояния, которая
// публикуется целиком при успешном завершении. Читатели берут текущий
// снимок без блокировки и не мешают записи.
type Store struct {
	mu sync.Mutex
	st atomic.Pointer[state]
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	s := &Store{}
	s.st.Store(newState())
	return s
}

// snapshot возвращает опубликованное состояние. Его нельзя изменять.
func (s *Store) snapshot() *state {
	return s.st.Load()
}

// update применяет fn к копии состояния и публикует её, если fn завершился без ошибки.
func (s *Store) update(fn func(draft *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.snapshot().clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.st.Store(draft)
	return nil
}

// WithinTx выполняет fn атомарно.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(draft *state) error {
		return fn(ctx, &memTx{st: draft})
	})
}

// WithinReadTx выполняет fn на текущем снимке; попытки записи возвращают ошибку.
func (s *Store) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, &memTx{st: s.snapshot(), readOnly: true})
}

// AddMember добавляет участника и возвращает его с присвоенным ID.
func (s *Store) AddMember(member domain.Member) domain.Member {
	_ = s.update(func(st *state) error {
		if member.ID == 0 {
			st.seq.member++
			member.ID = st.seq.member
		} else if member.ID > st.seq.member {
			st.seq.member = member.ID
		}
		if member.NoticeType == "" {
			member.NoticeType = domain.NoticeTypeEmail
		}
		st.members[member.ID] = member
		return nil
	})
	return member
}

// AddTag добавляет тег.
func (s *Store) AddTag(tag domain.Tag) domain.Tag {
	_ = s.update(func(st *state) error {
		if tag.ID == 0 {
			st.seq.tag++
			tag.ID = st.seq.tag
		} else if tag.ID > st.seq.tag {
			st.seq.tag = tag.ID
		}
		st.tags[tag.ID] = tag
		return nil
	})
	return tag
}

// AddItem добавляет товар, его теги и представительное изображение (если imageURL не пуст).
func (s *Store) AddItem(item domain.Item, tagIDs []int64, imageURL string) domain.Item {
	_ = s.update(func(st *state) error {
		if item.ID == 0 {
			st.seq.item++
			item.ID = st.seq.item
		} else if item.ID > st.seq.item {
			st.seq.item = item.ID
		}
		if item.SellStatus == "" {
			item.SellStatus = domain.SellStatusSell
		}
		if item.RegTime.IsZero() {
			item.RegTime = time.Now().UTC()
		}
		st.items[item.ID] = item
		if len(tagIDs) > 0 {
			st.itemTags[item.ID] = append([]int64(nil), tagIDs...)
		}
		if imageURL != "" {
			st.images[item.ID] = imageURL
		}
		return nil
	})
	return item
}

// Member возвращает участника по ID.
func (s *Store) Member(id int64) (domain.Member, bool) {
	member, ok := s.snapshot().members[id]
	return member, ok
}

// Tag возвращает тег по ID.
func (s *Store) Tag(id int64) (domain.Tag, bool) {
	tag, ok := s.snapshot().tags[id]
	return tag, ok
}

// memTx открывает репозитории поверх одного снимка состояния.
type memTx struct {
	st       *state
	readOnly bool
}

func (t *memTx) Members() domain.MemberRepository { return memberRepository{t} }
func (t *memTx) Items() domain.ItemRepository     { return itemRepository{t} }
func (t *memTx) Tags() domain.TagRepository       { return tagRepository{t} }
func (t *memTx) Orders() domain.OrderRepository   { return orderRepository{t} }
func (t *memTx) Carts() domain.CartRepository     { return cartRepository{t} }
func (t *memTx) Outbox() domain.OutboxWriter      { return outboxWriter{t} }

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

var (
	_ domain.UnitOfWork        = (*Store)(nil)
	_ domain.CatalogRepository = (*Store)(nil)
	_ domain.ImageLookup       = (*Store)(nil)
	_ domain.OutboxRepository  = (*Store)(nil)
)
