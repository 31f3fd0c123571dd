package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 一意制約違反、または条件付き更新の競合
	ErrConflict = errors.New("conflict")
)
