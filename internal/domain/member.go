package domain

// NoticeType — канал, через который участник получает уведомления о покупках.
type NoticeType string

const (
	NoticeTypeEmail NoticeType = "EMAIL"
	NoticeTypeSMS   NoticeType = "SMS"
)

// Valid сообщает, известен ли канал.
func (t NoticeType) Valid() bool {
	return t == NoticeTypeEmail || t == NoticeTypeSMS
}

// Member — участник программы лояльности.
type Member struct {
	ID    int64
	Email string
	Phone string
	// Point никогда не опускается ниже нуля.
	Point      int64
	NoticeType NoticeType
}
