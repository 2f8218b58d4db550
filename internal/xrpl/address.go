// Package xrpl содержит хелперы для адресов и сумм XRP Ledger.
package xrpl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"
)

// XRPL использует base58check с собственным алфавитом. Переводим адрес в
// биткоиновский алфавит посимвольно и декодируем штатным base58.CheckDecode.
const (
	rippleAlphabet  = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
	bitcoinAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

	accountIDVersion = 0x00
	accountIDLen     = 20

	DropsPerXRP = 1_000_000
)

var (
	ErrInvalidAddress = errors.New("invalid XRPL address")

	toBitcoin = strings.NewReplacer(pairs()...)
)

func pairs() []string {
	out := make([]string, 0, len(rippleAlphabet)*2)
	for i := range rippleAlphabet {
		out = append(out, rippleAlphabet[i:i+1], bitcoinAlphabet[i:i+1])
	}
	return out
}

// DecodeAccountID возвращает 20-байтовый account ID классического r-адреса.
func DecodeAccountID(address string) ([]byte, error) {
	address = strings.TrimSpace(address)
	if len(address) < 25 || len(address) > 35 || address[0] != 'r' {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	for i := 0; i < len(address); i++ {
		if strings.IndexByte(rippleAlphabet, address[i]) < 0 {
			return nil, fmt.Errorf("%w: bad character %q", ErrInvalidAddress, address[i])
		}
	}

	payload, version, err := base58.CheckDecode(toBitcoin.Replace(address))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if version != accountIDVersion || len(payload) != accountIDLen {
		return nil, fmt.Errorf("%w: not an account address", ErrInvalidAddress)
	}
	return payload, nil
}

func ValidateAddress(address string) error {
	_, err := DecodeAccountID(address)
	return err
}

// DropsFromXRP переводит сумму в XRP в drops (1 XRP = 1e6 drops).
func DropsFromXRP(amount decimal.Decimal) (int64, error) {
	if amount.IsNegative() {
		return 0, errors.New("negative amount")
	}
	drops := amount.Shift(6)
	if !drops.Equal(drops.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than 6 decimal places", amount)
	}
	return drops.IntPart(), nil
}

