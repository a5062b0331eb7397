// Package catalog ищет товары по фильтрам и строит рейтинги продаж.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	// MaxPageSize ограничивает размер страницы выдачи.
	MaxPageSize = 100

	BestOfDayWindow   = 1
	BestOfWeekWindow  = 7
	BestOfMonthWindow = 30
)

// Engine выполняет запросы каталога. Только чтение.
type Engine struct {
	repo    domain.CatalogRepository
	images  domain.ImageLookup
	now     func() time.Time
	metrics *metrics.ShopMetrics
	logger  *log.Entry
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics подключает метрики.
func WithMetrics(m *metrics.ShopMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine создаёт Engine. images может быть nil: тогда URL изображений пусты.
func NewEngine(repo domain.CatalogRepository, images domain.ImageLookup, options ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		images: images,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(e)
	}
	if e.logger == nil {
		e.logger = log.WithField("component", "catalog-engine")
	}
	return e
}

// Search возвращает страницу page (с нуля) товаров, подходящих под все заданные критерии.
func (e *Engine) Search(ctx context.Context, criteria domain.SearchCriteria, page, pageSize int) (result domain.ListingPage, err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveOperation("catalog_search", started, err) }()

	query, err := e.resolve(criteria, page, pageSize)
	if err != nil {
		return domain.ListingPage{}, err
	}

	rows, total, err := e.repo.SearchItems(ctx, query)
	if err != nil {
		return domain.ListingPage{}, fmt.Errorf("search items: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	images := e.lookupImages(ctx, ids)
	for i := range rows {
		rows[i].ImageURL = images[rows[i].ItemID]
	}

	return domain.ListingPage{
		Rows:     rows,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// resolve проверяет критерии и переводит их в ItemQuery относительно текущего момента.
func (e *Engine) resolve(criteria domain.SearchCriteria, page, pageSize int) (domain.ItemQuery, error) {
	if page < 0 {
		return domain.ItemQuery{}, domain.NewValidation("page", "must be non-negative")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return domain.ItemQuery{}, domain.NewValidation("page_size", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	if criteria.SellStatus != nil && !criteria.SellStatus.Valid() {
		return domain.ItemQuery{}, domain.NewValidation("sell_status", "must be SELL or SOLD_OUT")
	}
	if !criteria.DateWindow.Valid() {
		return domain.ItemQuery{}, domain.NewValidation("date_window", "must be one of all, 1d, 1w, 1m, 6m")
	}

	query := domain.ItemQuery{
		SellStatus:    criteria.SellStatus,
		CategoryID:    criteria.CategoryID,
		SortColumn:    domain.SortByRegTime,
		SortDirection: domain.SortDesc,
		Offset:        page * pageSize,
		Limit:         pageSize,
	}

	if since, ok := criteria.DateWindow.Since(e.now()); ok {
		query.RegisteredAfter = &since
	}

	if q := strings.TrimSpace(criteria.SearchQuery); q != "" {
		switch criteria.SearchField {
		case "", domain.SearchFieldName:
			query.NameContains = q
		case domain.SearchFieldCreator:
			query.CreatorContains = q
		default:
			return domain.ItemQuery{}, domain.NewValidation("search_field", "must be name or creator")
		}
	} else if criteria.SearchField != "" && criteria.SearchField != domain.SearchFieldName && criteria.SearchField != domain.SearchFieldCreator {
		return domain.ItemQuery{}, domain.NewValidation("search_field", "must be name or creator")
	}

	switch criteria.SortColumn {
	case "":
	case domain.SortByRegTime, domain.SortByName, domain.SortByPrice:
		query.SortColumn = criteria.SortColumn
	default:
		return domain.ItemQuery{}, domain.NewValidation("sort_column", "must be regTime, name or price")
	}
	switch criteria.SortDirection {
	case "":
	case domain.SortAsc, domain.SortDesc:
		query.SortDirection = criteria.SortDirection
	default:
		return domain.ItemQuery{}, domain.NewValidation("sort_direction", "must be asc or desc")
	}

	if len(criteria.TagIDs) > 0 {
		tagIDs := slices.Clone(criteria.TagIDs)
		slices.Sort(tagIDs)
		query.TagIDs = slices.Compact(tagIDs)
	}

	return query, nil
}

// RankBestSellers ранжирует все товары по числу позиций заказов за последние windowDays дней.
// Порядок: число продаж по убыванию, затем id по убыванию.
func (e *Engine) RankBestSellers(ctx context.Context, windowDays int) (result []domain.BestSellerRow, err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveOperation("catalog_best_sellers", started, err) }()

	if windowDays < 1 {
		return nil, domain.NewValidation("window_days", "must be at least 1")
	}

	now := e.now()
	since := now.AddDate(0, 0, -windowDays)
	rows, err := e.repo.CountSalesBetween(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("count sales since %s: %w", since.Format(time.RFC3339), err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ItemID)
	}
	images := e.lookupImages(ctx, ids)
	for i := range rows {
		rows[i].ImageURL = images[rows[i].ItemID]
	}
	return rows, nil
}

// BestOfDay строит рейтинг за сутки.
func (e *Engine) BestOfDay(ctx context.Context) ([]domain.BestSellerRow, error) {
	return e.RankBestSellers(ctx, BestOfDayWindow)
}

// BestOfWeek строит рейтинг за неделю.
func (e *Engine) BestOfWeek(ctx context.Context) ([]domain.BestSellerRow, error) {
	return e.RankBestSellers(ctx, BestOfWeekWindow)
}

// BestOfMonth строит рейтинг за 30 дней.
func (e *Engine) BestOfMonth(ctx context.Context) ([]domain.BestSellerRow, error) {
	return e.RankBestSellers(ctx, BestOfMonthWindow)
}

// lookupImages не прерывает запрос при ошибке хранилища изображений: строки отдаются без URL.
func (e *Engine) lookupImages(ctx context.Context, ids []int64) map[int64]string {
	if e.images == nil || len(ids) == 0 {
		return nil
	}
	images, err := e.images.RepresentativeImages(ctx, ids)
	if err != nil {
		e.logger.WithError(err).WithField("items", len(ids)).Warn("failed to resolve representative images")
		return nil
	}
	return images
}
