// Package cart ведёт корзину участника и оформляет из неё заказ.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
	"github.com/vladislavdragonenkov/shop/internal/service/order"
	"github.com/vladislavdragonenkov/shop/internal/validation"
)

// Service управляет строками корзины.
type Service struct {
	uow     domain.UnitOfWork
	orders  *order.Manager
	images  domain.ImageLookup
	metrics *metrics.ShopMetrics
	logger  *log.Entry
}

// Option настраивает Service.
type Option func(*Service)

// WithImages задаёт источник изображений для ListCart.
func WithImages(images domain.ImageLookup) Option {
	return func(s *Service) {
		s.images = images
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService создаёт Service. orders используется для оформления заказа из корзины.
func NewService(uow domain.UnitOfWork, orders *order.Manager, options ...Option) *Service {
	s := &Service{uow: uow, orders: orders}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "cart-service")
	}
	return s
}

type addRequest struct {
	Email  string `validate:"required"`
	ItemID int64  `validate:"gt=0"`
	Count  int    `validate:"gt=0"`
}

// AddItem кладёт товар в корзину участника и возвращает id строки.
// Корзина создаётся при первом добавлении; повторный товар увеличивает количество.
func (s *Service) AddItem(ctx context.Context, email string, itemID int64, count int) (int64, error) {
	if err := validation.Struct(addRequest{Email: email, ItemID: itemID, Count: count}); err != nil {
		return 0, err
	}

	var lineID int64
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		if _, err := tx.Items().Get(ctx, itemID); err != nil {
			return err
		}

		carts := tx.Carts()
		cart, err := carts.GetByMember(ctx, member.ID)
		if errors.Is(err, domain.ErrNotFound) {
			cart, err = carts.Create(ctx, member.ID)
		}
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		line, found, err := carts.FindItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}
		if found {
			lineID = line.ID
			return carts.UpdateItemCount(ctx, line.ID, line.Count+count)
		}

		line, err = carts.AddItem(ctx, domain.CartItem{CartID: cart.ID, ItemID: itemID, Count: count})
		if err != nil {
			return fmt.Errorf("add cart item: %w", err)
		}
		lineID = line.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(log.Fields{"cart_item_id": lineID, "item_id": itemID, "count": count}).Debug("cart item added")
	return lineID, nil
}

// UpdateCount задаёт новое количество в строке корзины.
func (s *Service) UpdateCount(ctx context.Context, email string, cartItemID int64, count int) error {
	if err := validation.Var("count", count, "gt=0"); err != nil {
		return err
	}
	return s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := authorize(ctx, tx, cartItemID, email); err != nil {
			return err
		}
		return tx.Carts().UpdateItemCount(ctx, cartItemID, count)
	})
}

// RemoveItem удаляет строку корзины.
func (s *Service) RemoveItem(ctx context.Context, email string, cartItemID int64) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := authorize(ctx, tx, cartItemID, email); err != nil {
			return err
		}
		return tx.Carts().DeleteItem(ctx, cartItemID)
	})
}

// ValidateOwnership сообщает, принадлежит ли строка корзине участника с email.
func (s *Service) ValidateOwnership(ctx context.Context, cartItemID int64, email string) (bool, error) {
	var owned bool
	err := s.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		owner, err := tx.Carts().ItemOwnerEmail(ctx, cartItemID)
		if err != nil {
			return err
		}
		owned = owner == email
		return nil
	})
	return owned, err
}

// ListCart возвращает строки корзины с названием, ценой и изображением.
// Участник без корзины получает пустой список.
func (s *Service) ListCart(ctx context.Context, email string) ([]domain.CartLineView, error) {
	if err := validation.Var("email", email, "required"); err != nil {
		return nil, err
	}

	views := make([]domain.CartLineView, 0)
	err := s.uow.WithinReadTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		member, err := tx.Members().GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		cart, err := tx.Carts().GetByMember(ctx, member.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		lines, err := tx.Carts().ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			item, err := tx.Items().Get(ctx, line.ItemID)
			if err != nil {
				return err
			}
			views = append(views, domain.CartLineView{
				CartItemID: line.ID,
				ItemID:     item.ID,
				ItemName:   item.Name,
				Price:      item.Price,
				Count:      line.Count,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachImages(ctx, views)
	return views, nil
}

type convertRequest struct {
	CartItemIDs []int64 `validate:"required,min=1,unique,dive,gt=0"`
	UsedPoint   int64   `validate:"gte=0"`
}

// ConvertToOrder оформляет один заказ из выбранных строк корзины.
// Владелец всех строк проверяется до любых записей; заказ и удаление строк
// фиксируются вместе.
func (s *Service) ConvertToOrder(ctx context.Context, email string, cartItemIDs []int64, usedPoint int64) (_ int64, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("convert_cart", started, err) }()

	if err := validation.Struct(convertRequest{CartItemIDs: cartItemIDs, UsedPoint: usedPoint}); err != nil {
		return 0, err
	}

	var placement order.Placement
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		lines := make([]domain.OrderLine, 0, len(cartItemIDs))
		for _, id := range cartItemIDs {
			if err := authorize(ctx, tx, id, email); err != nil {
				return err
			}
			line, err := tx.Carts().GetItem(ctx, id)
			if err != nil {
				return err
			}
			lines = append(lines, domain.OrderLine{ItemID: line.ItemID, Count: line.Count})
		}

		p, err := s.orders.PlaceCartOrderTx(ctx, tx, email, lines, usedPoint)
		if err != nil {
			return err
		}
		for _, id := range cartItemIDs {
			if err := tx.Carts().DeleteItem(ctx, id); err != nil {
				return fmt.Errorf("delete cart item %d: %w", id, err)
			}
		}
		placement = p
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.orders.Complete(ctx, placement)
	return placement.Order.ID, nil
}

func authorize(ctx context.Context, tx domain.Tx, cartItemID int64, email string) error {
	owner, err := tx.Carts().ItemOwnerEmail(ctx, cartItemID)
	if err != nil {
		return err
	}
	if owner != email {
		return &domain.UnauthorizedError{Kind: domain.KindCartItem, ID: cartItemID}
	}
	return nil
}

func (s *Service) attachImages(ctx context.Context, views []domain.CartLineView) {
	if s.images == nil || len(views) == 0 {
		return
	}
	ids := make([]int64, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.ItemID)
	}
	images, err := s.images.RepresentativeImages(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("image lookup failed")
		return
	}
	for i := range views {
		views[i].ImageURL = images[views[i].ItemID]
	}
}
