package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMissingField means the symbol or price path is absent from the message.
	ErrMissingField = errors.New("market: missing field")
	// ErrBadPrice means the price field is present but not a number.
	ErrBadPrice = errors.New("market: invalid price")
)

// FieldPath addresses a value nested in a decoded JSON object.
type FieldPath []string

// ParsePath splits a dotted path such as "data.k.c".
func ParsePath(s string) (FieldPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty field path")
	}
	parts := strings.Split(s, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("field path %q has an empty segment", s)
		}
	}
	return FieldPath(parts), nil
}

// MustParsePath is ParsePath for constant paths.
func MustParsePath(s string) FieldPath {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p FieldPath) String() string { return strings.Join(p, ".") }

// Lookup walks the path through nested objects.
func (p FieldPath) Lookup(fields map[string]any) (any, bool) {
	var cur any = fields
	for _, key := range p {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// Quote is the routing key and price extracted from a Message.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Seq        uint64          `json:"seq"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Extractor pulls a Quote out of a Message. It is partial: messages that lack
// either path fail with ErrMissingField.
type Extractor struct {
	Symbol FieldPath
	Price  FieldPath
}

// KlineExtractor reads the symbol and close price of a combined-stream kline
// event ({"stream":..,"data":{"k":{"s":..,"c":..}}}).
func KlineExtractor() Extractor {
	return Extractor{
		Symbol: FieldPath{"data", "k", "s"},
		Price:  FieldPath{"data", "k", "c"},
	}
}

// NewExtractor builds an Extractor from dotted paths.
func NewExtractor(symbolPath, pricePath string) (Extractor, error) {
	sym, err := ParsePath(symbolPath)
	if err != nil {
		return Extractor{}, fmt.Errorf("symbol path: %w", err)
	}
	price, err := ParsePath(pricePath)
	if err != nil {
		return Extractor{}, fmt.Errorf("price path: %w", err)
	}
	return Extractor{Symbol: sym, Price: price}, nil
}

// Extract returns the quote carried by msg.
func (e Extractor) Extract(msg Message) (Quote, error) {
	rawSym, ok := e.Symbol.Lookup(msg.Fields)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrMissingField, e.Symbol)
	}
	symbol, ok := rawSym.(string)
	if !ok || symbol == "" {
		return Quote{}, fmt.Errorf("%w: %s is not a symbol", ErrMissingField, e.Symbol)
	}

	rawPrice, ok := e.Price.Lookup(msg.Fields)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrMissingField, e.Price)
	}
	price, err := parsePrice(rawPrice)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrBadPrice, e.Price, err)
	}

	return Quote{
		Symbol:     symbol,
		Price:      price,
		Seq:        msg.Seq,
		ReceivedAt: msg.ReceivedAt,
	}, nil
}

func parsePrice(v any) (decimal.Decimal, error) {
	switch p := v.(type) {
	case string:
		return decimal.NewFromString(p)
	case json.Number:
		return decimal.NewFromString(p.String())
	case float64:
		return decimal.NewFromFloat(p), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported type %T", v)
	}
}
