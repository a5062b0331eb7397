package domain

import "time"

// SellStatus — статус продажи товара.
type SellStatus string

const (
	SellStatusSell    SellStatus = "SELL"
	SellStatusSoldOut SellStatus = "SOLD_OUT"
)

// Valid сообщает, известен ли статус.
func (s SellStatus) Valid() bool {
	return s == SellStatusSell || s == SellStatusSoldOut
}

// Item описывает товар каталога. Ядро читает товары, но не управляет ими.
type Item struct {
	ID          int64
	Name        string
	Detail      string
	Price       int64
	ShippingFee int64
	SellStatus  SellStatus
	CategoryID  int64
	CreatedBy   string
	RegTime     time.Time
}

// Tag хранит тег товара с накопленным числом продаж.
type Tag struct {
	ID        int64
	Name      string
	TotalSell int64
}
