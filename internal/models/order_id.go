package models

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	orderIDPrefix       = "OP"
	orderIDSuffixLength = 8
	orderIDAlphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// NewOrderID returns a human-facing order reference such as OP-LZ3K9Q2A-7F4XK2QM.
func NewOrderID() string {
	return newOrderIDAt(time.Now())
}

func newOrderIDAt(now time.Time) string {
	timestamp := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))

	var suffix strings.Builder
	suffix.Grow(orderIDSuffixLength)
	max := big.NewInt(int64(len(orderIDAlphabet)))
	for i := 0; i < orderIDSuffixLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		suffix.WriteByte(orderIDAlphabet[n.Int64()])
	}

	return orderIDPrefix + "-" + timestamp + "-" + suffix.String()
}
