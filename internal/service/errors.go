package service

import (
	"errors"
	"fmt"
)

// 错误分类：handler 通过 errors.Is 映射为 HTTP 状态码，
// 其余错误一律视为内部错误。
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
)

var (
	ErrPostNotFound       = fmt.Errorf("post %w", ErrNotFound)
	ErrSlugTaken          = fmt.Errorf("slug already exists: %w", ErrConflict)
	ErrEmptySlug          = fmt.Errorf("slug is empty: %w", ErrInvalidInput)
	ErrEmptyName          = fmt.Errorf("name is empty: %w", ErrInvalidInput)
	ErrCategoryNotFound   = fmt.Errorf("category %w", ErrNotFound)
	ErrCategoryExists     = fmt.Errorf("category already exists: %w", ErrConflict)
	ErrCategoryInUse      = fmt.Errorf("category still has posts: %w", ErrConflict)
	ErrAuthorNotFound     = fmt.Errorf("author %w", ErrNotFound)
	ErrSubscriberNotFound = fmt.Errorf("subscriber %w", ErrNotFound)
	ErrAlreadySubscribed  = fmt.Errorf("email already subscribed: %w", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrInvalidRange       = fmt.Errorf("unsupported range: %w", ErrInvalidInput)
	ErrInvalidStatus      = fmt.Errorf("unsupported status: %w", ErrInvalidInput)
)
