// Package notify доставляет уведомления о покупках по каналу, выбранному участником.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

// ErrNoChannel: для типа уведомления не зарегистрирован канал.
var ErrNoChannel = errors.New("notification channel is not configured")

// Notice — уведомление, готовое к доставке.
type Notice struct {
	ID         string              `json:"id"`
	Channel    domain.NoticeType   `json:"channel"`
	MemberID   int64               `json:"member_id"`
	Recipient  string              `json:"recipient"`
	OrderID    int64               `json:"order_id,omitempty"`
	Subject    string              `json:"subject"`
	Body       string              `json:"body"`
	Lines      []domain.NoticeLine `json:"lines,omitempty"`
	TotalPrice int64               `json:"total_price"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Channel доставляет уведомление одним способом.
type Channel interface {
	Deliver(ctx context.Context, notice Notice) error
}

// Router выбирает канал по NoticeType участника.
type Router struct {
	channels map[domain.NoticeType]Channel
	metrics  *metrics.ShopMetrics
	logger   *log.Entry
	now      func() time.Time
}

// RouterOption настраивает Router.
type RouterOption func(*Router)

// WithChannel регистрирует канал для типа уведомления.
func WithChannel(noticeType domain.NoticeType, channel Channel) RouterOption {
	return func(r *Router) {
		r.channels[noticeType] = channel
	}
}

// WithRouterMetrics подключает метрики доставки.
func WithRouterMetrics(m *metrics.ShopMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithRouterLogger задаёт logger.
func WithRouterLogger(logger *log.Entry) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter создаёт Router.
func NewRouter(options ...RouterOption) *Router {
	r := &Router{
		channels: make(map[domain.NoticeType]Channel),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(r)
	}
	if r.logger == nil {
		r.logger = log.WithField("component", "notify-router")
	}
	return r
}

// SendPurchaseNotice уведомляет о покупке одного товара.
func (r *Router) SendPurchaseNotice(ctx context.Context, member domain.Member, summary domain.OrderSummary) error {
	notice, err := r.newNotice(member)
	if err != nil {
		return err
	}
	notice.OrderID = summary.OrderID
	notice.TotalPrice = summary.TotalPrice
	notice.Lines = []domain.NoticeLine{{ItemName: summary.ItemName, Count: summary.Count, OrderPrice: summary.TotalPrice}}
	notice.Subject = fmt.Sprintf("Order #%d confirmed", summary.OrderID)
	notice.Body = fmt.Sprintf(
		"%s x%d, total %d, points used %d, points earned %d, ordered at %s",
		summary.ItemName, summary.Count, summary.TotalPrice, summary.UsedPoint, summary.AccPoint,
		summary.OrderDate.Format(time.RFC3339),
	)
	return r.deliver(ctx, notice)
}

// SendCartPurchaseNotice отправляет одно агрегированное уведомление о покупке из корзины.
func (r *Router) SendCartPurchaseNotice(ctx context.Context, member domain.Member, lines []domain.NoticeLine, totalPrice int64) error {
	notice, err := r.newNotice(member)
	if err != nil {
		return err
	}
	notice.Lines = append([]domain.NoticeLine(nil), lines...)
	notice.TotalPrice = totalPrice
	notice.Subject = fmt.Sprintf("Your order of %d item(s) is confirmed", len(lines))

	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%s x%d: %d\n", line.ItemName, line.Count, line.OrderPrice)
	}
	fmt.Fprintf(&b, "total %d", totalPrice)
	notice.Body = b.String()

	return r.deliver(ctx, notice)
}

func (r *Router) newNotice(member domain.Member) (Notice, error) {
	noticeType := member.NoticeType
	if noticeType == "" {
		noticeType = domain.NoticeTypeEmail
	}

	var recipient string
	switch noticeType {
	case domain.NoticeTypeEmail:
		recipient = member.Email
	case domain.NoticeTypeSMS:
		recipient = member.Phone
	default:
		return Notice{}, domain.NewValidation("notice_type", "must be EMAIL or SMS")
	}
	if recipient == "" {
		return Notice{}, domain.NewValidation("recipient", fmt.Sprintf("member %d has no %s address", member.ID, noticeType))
	}

	return Notice{
		ID:        uuid.NewString(),
		Channel:   noticeType,
		MemberID:  member.ID,
		Recipient: recipient,
		CreatedAt: r.now(),
	}, nil
}

func (r *Router) deliver(ctx context.Context, notice Notice) error {
	channel, ok := r.channels[notice.Channel]
	if !ok {
		r.metrics.RecordNotificationFailed(string(notice.Channel))
		return fmt.Errorf("%s: %w", notice.Channel, ErrNoChannel)
	}

	if err := channel.Deliver(ctx, notice); err != nil {
		r.metrics.RecordNotificationFailed(string(notice.Channel))
		return fmt.Errorf("deliver %s notice %s: %w", notice.Channel, notice.ID, err)
	}

	r.metrics.RecordNotificationSent(string(notice.Channel))
	r.logger.WithFields(log.Fields{
		"notice_id": notice.ID,
		"channel":   notice.Channel,
		"member_id": notice.MemberID,
		"order_id":  notice.OrderID,
	}).Debug("purchase notice delivered")
	return nil
}

var _ domain.NotificationDispatcher = (*Router)(nil)
