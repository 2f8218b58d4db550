package xrpl

import (
	"fmt"
	"strings"
)

// Explorer строит ссылки на публичный обозреватель сети.
type Explorer struct {
	BaseURL string
}

func NewExplorer(baseURL string) Explorer {
	return Explorer{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (e Explorer) Transaction(hash string) string {
	if hash == "" || e.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/transactions/%s", e.BaseURL, hash)
}

func (e Explorer) Account(address string) string {
	if address == "" || e.BaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/accounts/%s", e.BaseURL, address)
}
