package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TopicAll is the topic query that matches every book.
const TopicAll = "all"

// Book is a catalog entry as stored on every catalog replica.
type Book struct {
	ID       int64           `json:"id"`
	Topic    string          `json:"topic"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Order is an append-only purchase record as stored on every order replica.
type Order struct {
	BookID    int64     `json:"book_id"`
	OrderDate time.Time `json:"order_date"`
	Quantity  int       `json:"quantity"`
}

// BookUpdate carries the optional fields of a modify request.
type BookUpdate struct {
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity *int             `json:"quantity,omitempty"`
}

func (u BookUpdate) Validate() error {
	if u.Price == nil && u.Quantity == nil {
		return validationError("no update data provided")
	}
	if u.Quantity != nil && *u.Quantity < 0 {
		return validationError("quantity must not be negative")
	}
	if u.Price != nil && u.Price.IsNegative() {
		return validationError("price must not be negative")
	}
	return nil
}

// Apply returns a copy of b with the update applied.
func (u BookUpdate) Apply(b Book) Book {
	if u.Price != nil {
		b.Price = *u.Price
	}
	if u.Quantity != nil {
		b.Quantity = *u.Quantity
	}
	return b
}

// ParseBookID accepts only a plain run of decimal digits.
func ParseBookID(s string) (int64, error) {
	if s == "" {
		return 0, validationError("book id must be numeric")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, validationError("book id must be numeric")
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, validationError("book id out of range")
	}
	return id, nil
}

// IsTopicAll reports whether q selects the whole catalog.
func IsTopicAll(q string) bool {
	return strings.EqualFold(strings.TrimSpace(q), TopicAll)
}

// NormalizeTopic folds a topic query to the form used for matching and cache keys.
func NormalizeTopic(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// MatchesTopic implements the catalog's topic filter: "all" matches every
// book, anything else is a case-insensitive substring match.
func (b Book) MatchesTopic(q string) bool {
	if IsTopicAll(q) {
		return true
	}
	return strings.Contains(strings.ToLower(b.Topic), NormalizeTopic(q))
}
