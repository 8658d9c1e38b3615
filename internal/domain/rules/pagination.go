package rules

import "github.com/ivankudzin/matchcore/internal/domain/model"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ValidPage reports whether page and limit are usable offsets.
func ValidPage(page, limit int) bool {
	return page >= 1 && limit >= 1 && limit <= MaxPageLimit
}

func Offset(page, limit int) int {
	return (page - 1) * limit
}

func Paginate(page, limit, total int) model.Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return model.Pagination{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page*limit < total,
		HasPrevPage: page > 1,
	}
}
