// Package reference генерирует внешние референсы операций.
package reference

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Length задаёт длину референса пополнений, заявок на вывод и покупок.
const Length = 12

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// New возвращает случайный референс из заглавных латинских букв и цифр.
func New() string {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		panic("reference: crypto/rand failed: " + err.Error())
	}
	// 256 % 36 != 0, небольшой перекос распределения допустим.
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Payout возвращает уникальный сортируемый по времени референс выплаты.
func Payout() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return "PAY-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
