package storage

import "errors"

var (
	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrRoleNotFound         = errors.New("role not found")
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrResetTokenNotFound   = errors.New("reset token not found")
)
