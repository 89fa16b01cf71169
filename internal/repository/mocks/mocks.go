package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// BlobRepository is a mock for repository.BlobRepository.
type BlobRepository struct {
	mock.Mock
}

func (m *BlobRepository) Get(ctx context.Context, key string, out any) error {
	args := m.Called(ctx, key, out)
	return args.Error(0)
}

func (m *BlobRepository) Put(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// CacheRepository is a mock for repository.CacheRepository.
type CacheRepository struct {
	mock.Mock
}

func (m *CacheRepository) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *CacheRepository) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
