package service

import "DipSentinel/internal/model"

// Entitlements decides which accounts receive extended snapshot fields.
type Entitlements interface {
	IsEntitled(account model.AccountID) bool
}

// StaticEntitlements is a fixed allow-list, usually loaded from config.
type StaticEntitlements map[model.AccountID]struct{}

// NewStaticEntitlements builds an allow-list from account ids.
func NewStaticEntitlements(accounts []int64) StaticEntitlements {
	out := make(StaticEntitlements, len(accounts))
	for _, a := range accounts {
		out[model.AccountID(a)] = struct{}{}
	}
	return out
}

func (s StaticEntitlements) IsEntitled(account model.AccountID) bool {
	_, ok := s[account]
	return ok
}
