package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"

	"github.com/google/uuid"
)

// Feature: storefront, Property 3: Category names are unique in the store
// Validates: Requirements 4.1
func TestCategoryRepository_UniqueName(t *testing.T) {
	repo := NewCategoryRepository(testDB)
	ctx := context.Background()

	name := "unique-" + uuid.NewString()[:8]
	first := &domain.Category{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	dup := &domain.Category{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrCategoryAlreadyExists) {
		t.Fatalf("expected duplicate category error, got %v", err)
	}

	// Renaming onto an existing name trips the same constraint
	other := &domain.Category{ID: uuid.New(), Name: "other-" + uuid.NewString()[:8], CreatedAt: time.Now()}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	other.Name = name
	if err := repo.Update(ctx, other); !errors.Is(err, ErrCategoryAlreadyExists) {
		t.Errorf("expected duplicate category error on rename, got %v", err)
	}

	if err := repo.Delete(ctx, uuid.New()); !errors.Is(err, ErrCategoryNotFound) {
		t.Errorf("expected not found for unknown category, got %v", err)
	}
}
