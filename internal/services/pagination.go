package services

import "fmt"

const (
	// MaxPage bounds page numbers so offsets stay well inside int range.
	MaxPage     = 10000
	MaxPageSize = 1000
)

func pageOffset(page, limit int) (int, error) {
	if page <= 0 || limit <= 0 {
		return 0, invalidInput("page and limit must be positive")
	}
	if page > MaxPage || limit > MaxPageSize {
		return 0, invalidInput(fmt.Sprintf("page must be at most %d and limit at most %d", MaxPage, MaxPageSize))
	}
	return (page - 1) * limit, nil
}
