package domain

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// OrderNumberPrefix: префикс человекочитаемого номера заказа.
	OrderNumberPrefix = "ORD"

	orderNumberAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	orderNumberSuffixLen = 6
	// 36^6 возможных суффиксов.
	orderNumberSpace uint64 = 2176782336
	// Множитель взаимно прост с 36^6, поэтому seq -> suffix биективно.
	orderNumberStride uint64 = 1000000007
)

// OrderNumberGenerator выдаёт номера вида ORD-<unix ms>-<6 символов [0-9A-Z]>.
// В пределах одного генератора суффиксы не повторяются первые 36^6 вызовов,
// между процессами уникальность дополнительно проверяет хранилище.
type OrderNumberGenerator struct {
	seq    atomic.Uint64
	offset uint64
	now    func() time.Time
}

// NewOrderNumberGenerator создаёт генератор со случайной начальной точкой.
func NewOrderNumberGenerator() *OrderNumberGenerator {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand не возвращает ошибок на поддерживаемых платформах.
		panic(fmt.Sprintf("read random seed: %v", err))
	}
	return &OrderNumberGenerator{
		offset: binary.BigEndian.Uint64(buf[:]) % orderNumberSpace,
		now:    time.Now,
	}
}

// Next возвращает следующий номер заказа.
func (g *OrderNumberGenerator) Next() string {
	n := g.seq.Add(1) % orderNumberSpace
	code := (n*orderNumberStride + g.offset) % orderNumberSpace

	var suffix [orderNumberSuffixLen]byte
	for i := orderNumberSuffixLen - 1; i >= 0; i-- {
		suffix[i] = orderNumberAlphabet[code%36]
		code /= 36
	}
	return fmt.Sprintf("%s-%d-%s", OrderNumberPrefix, g.now().UnixMilli(), suffix[:])
}

// IsOrderNumber проверяет формат номера заказа.
func IsOrderNumber(raw string) bool {
	parts := strings.Split(raw, "-")
	if len(parts) != 3 || parts[0] != OrderNumberPrefix {
		return false
	}
	if parts[1] == "" {
		return false
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return false
		}
	}
	if len(parts[2]) != orderNumberSuffixLen {
		return false
	}
	for _, r := range parts[2] {
		if !strings.ContainsRune(orderNumberAlphabet, r) {
			return false
		}
	}
	return true
}
