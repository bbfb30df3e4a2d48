// Package access содержит проверку административных прав.
package access

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmeshcher/betwallet-ledger/internal/model"
)

// Authorizer проверяет, является ли пользователь администратором.
type Authorizer interface {
	IsAdmin(actor model.Actor) bool
}

// AdminSet хранит фиксированный набор администраторов из конфигурации.
type AdminSet map[int64]struct{}

// NewAdminSet создаёт набор администраторов.
func NewAdminSet(ids ...int64) AdminSet {
	s := make(AdminSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// ParseAdminSet разбирает список идентификаторов через запятую.
func ParseAdminSet(list string) (AdminSet, error) {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return NewAdminSet(ids...), nil
}

func (s AdminSet) IsAdmin(actor model.Actor) bool {
	_, ok := s[actor.UserID]
	return ok
}

// RequireAdmin возвращает model.ErrForbidden, если actor не администратор.
func RequireAdmin(a Authorizer, actor model.Actor) error {
	if a == nil || !a.IsAdmin(actor) {
		return fmt.Errorf("%w: user %d is not an administrator", model.ErrForbidden, actor.UserID)
	}
	return nil
}
