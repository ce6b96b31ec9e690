package reconcile

import (
	"sort"
	"strings"

	"novel-client/internal/models"
)

// Canonical возвращает новый список без повторов ID в заданном порядке.
// При повторе побеждает последнее вхождение, позиция берется у первого.
// Равные ключи сортировки упорядочиваются по ID по возрастанию.
func Canonical(stories []models.Story, order models.StoryOrder) []models.Story {
	out := make([]models.Story, 0, len(stories))
	index := make(map[string]int, len(stories))
	for _, s := range stories {
		if i, ok := index[s.ID]; ok {
			out[i] = s.Clone()
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s.Clone())
	}

	less := lessFunc(order)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func lessFunc(order models.StoryOrder) func(a, b models.Story) bool {
	byID := func(a, b models.Story) bool { return a.ID < b.ID }

	switch order {
	case models.OrderCreatedAsc:
		return func(a, b models.Story) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return byID(a, b)
		}
	case models.OrderTitleAsc:
		return func(a, b models.Story) bool {
			ta, tb := strings.ToLower(a.Title), strings.ToLower(b.Title)
			if ta != tb {
				return ta < tb
			}
			return byID(a, b)
		}
	default:
		return func(a, b models.Story) bool {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return byID(a, b)
		}
	}
}
