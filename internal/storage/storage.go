package storage

import "errors"

var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrCompanyExists   = errors.New("company already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("user already exists")
	ErrSecretNotFound  = errors.New("active signing secret not found")
	ErrKeyNotFound     = errors.New("verification key not found")
)
