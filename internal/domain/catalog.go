package domain

import (
	"strings"
	"time"
)

// DateWindow ограничивает выборку по дате регистрации товара.
type DateWindow string

const (
	DateWindowAll      DateWindow = "all"
	DateWindowDay      DateWindow = "1d"
	DateWindowWeek     DateWindow = "1w"
	DateWindowMonth    DateWindow = "1m"
	DateWindowHalfYear DateWindow = "6m"
)

// Since возвращает нижнюю границу окна относительно now; ok=false для "all".
func (w DateWindow) Since(now time.Time) (time.Time, bool) {
	switch w {
	case DateWindowDay:
		return now.AddDate(0, 0, -1), true
	case DateWindowWeek:
		return now.AddDate(0, 0, -7), true
	case DateWindowMonth:
		return now.AddDate(0, -1, 0), true
	case DateWindowHalfYear:
		return now.AddDate(0, -6, 0), true
	default:
		return time.Time{}, false
	}
}

// Valid сообщает, известно ли окно. Пустое значение трактуется как "all".
func (w DateWindow) Valid() bool {
	switch w {
	case "", DateWindowAll, DateWindowDay, DateWindowWeek, DateWindowMonth, DateWindowHalfYear:
		return true
	}
	return false
}

// SearchField — поле, по которому ищется SearchQuery.
type SearchField string

const (
	SearchFieldName    SearchField = "name"
	SearchFieldCreator SearchField = "creator"
)

// SortColumn — колонка сортировки выдачи.
type SortColumn string

const (
	SortByRegTime SortColumn = "regTime"
	SortByName    SortColumn = "name"
	SortByPrice   SortColumn = "price"
)

// SortDirection — направление сортировки.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SearchCriteria задаёт условия поиска по каталогу. Незаданные поля не ограничивают выборку.
type SearchCriteria struct {
	SellStatus    *SellStatus
	DateWindow    DateWindow
	SearchField   SearchField
	SearchQuery   string
	CategoryID    *int64
	TagIDs        []int64
	SortColumn    SortColumn
	SortDirection SortDirection
}

// ItemQuery содержит критерии, разрешённые относительно конкретного момента времени.
// Хранилища строят по нему условия, не зная о SearchCriteria.
type ItemQuery struct {
	SellStatus      *SellStatus
	RegisteredAfter *time.Time
	NameContains    string
	CreatorContains string
	CategoryID      *int64
	TagIDs          []int64
	SortColumn      SortColumn
	SortDirection   SortDirection
	Offset          int
	Limit           int
}

// ListingRow — строка выдачи каталога.
type ListingRow struct {
	ItemID      int64
	Name        string
	Detail      string
	ImageURL    string
	Price       int64
	ShippingFee int64
}

// ListingPage содержит страницу выдачи и общее число совпадений.
type ListingPage struct {
	Rows     []ListingRow
	Total    int64
	Page     int
	PageSize int
}

// TotalPages возвращает число страниц при текущем размере.
func (p ListingPage) TotalPages() int {
	if p.PageSize <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// BestSellerRow — строка рейтинга продаж.
type BestSellerRow struct {
	ItemID    int64
	Name      string
	Detail    string
	ImageURL  string
	Price     int64
	SoldCount int64
}

// OrderLineView — позиция заказа в истории.
type OrderLineView struct {
	ItemID       int64
	ItemName     string
	Count        int
	OrderPrice   int64
	ImageURL     string
	ReturnStatus ReturnStatus
	ReturnCount  int
	ReturnPrice  int64
}

// OrderHistory — заказ в истории участника.
type OrderHistory struct {
	OrderID      int64
	OrderDate    time.Time
	Status       OrderStatus
	GiftStatus   GiftStatus
	ReturnStatus ReturnStatus
	UsedPoint    int64
	AccPoint     int64
	TotalPrice   int64
	Lines        []OrderLineView
}

// OrderHistoryPage содержит страницу истории заказов.
type OrderHistoryPage struct {
	Orders   []OrderHistory
	Total    int64
	Page     int
	PageSize int
}

// EscapeLike экранирует спецсимволы шаблона LIKE.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
