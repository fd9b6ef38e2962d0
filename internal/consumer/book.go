package consumer

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
	"go.uber.org/zap/zapcore"
)

// PriceBook maps symbol to latest price. It is not safe for concurrent use:
// only the consumer loop touches it.
type PriceBook struct {
	prices *btree.Map[string, decimal.Decimal]
}

// Entry is one symbol in a Snapshot.
type Entry struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// Snapshot is a copy of the book ordered by symbol.
type Snapshot []Entry

// Map converts the snapshot into a symbol keyed map.
func (s Snapshot) Map() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(s))
	for _, e := range s {
		m[e.Symbol] = e.Price
	}
	return m
}

// MarshalLogObject logs the snapshot as symbol: price pairs.
func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, e := range s {
		enc.AddString(e.Symbol, e.Price.String())
	}
	return nil
}

// NewPriceBook returns an empty book.
func NewPriceBook() *PriceBook {
	return &PriceBook{prices: btree.NewMap[string, decimal.Decimal](0)}
}

// Set records price as the latest for symbol and returns the previous one.
func (b *PriceBook) Set(symbol string, price decimal.Decimal) (decimal.Decimal, bool) {
	return b.prices.Set(symbol, price)
}

// Get returns the latest price for symbol.
func (b *PriceBook) Get(symbol string) (decimal.Decimal, bool) {
	return b.prices.Get(symbol)
}

// Len returns the number of symbols.
func (b *PriceBook) Len() int {
	return b.prices.Len()
}

// Snapshot copies the book.
func (b *PriceBook) Snapshot() Snapshot {
	snap := make(Snapshot, 0, b.prices.Len())
	b.prices.Scan(func(symbol string, price decimal.Decimal) bool {
		snap = append(snap, Entry{Symbol: symbol, Price: price})
		return true
	})
	return snap
}
