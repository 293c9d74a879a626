package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

type mockCategoryRepository struct {
	categories map[uuid.UUID]*domain.Category
}

func newMockCategoryRepository() *mockCategoryRepository {
	return &mockCategoryRepository{
		categories: make(map[uuid.UUID]*domain.Category),
	}
}

func (m *mockCategoryRepository) Create(ctx context.Context, category *domain.Category) error {
	for _, existing := range m.categories {
		if existing.Name == category.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	m.categories[category.ID] = category
	return nil
}

func (m *mockCategoryRepository) Update(ctx context.Context, category *domain.Category) error {
	existing, ok := m.categories[category.ID]
	if !ok {
		return repository.ErrCategoryNotFound
	}
	for _, other := range m.categories {
		if other.ID != category.ID && other.Name == category.Name {
			return repository.ErrCategoryAlreadyExists
		}
	}
	existing.Name = category.Name
	existing.Description = category.Description
	return nil
}

func (m *mockCategoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	delete(m.categories, id)
	return nil
}

func (m *mockCategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	result := make([]*domain.Category, 0, len(m.categories))
	for _, category := range m.categories {
		result = append(result, category)
	}
	return result, nil
}

func (m *mockCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	category, ok := m.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return category, nil
}

func newCategoryFixture() (*mockCategoryRepository, *mockProductRepository, CategoryService) {
	categoryRepo := newMockCategoryRepository()
	productRepo := newMockProductRepository()
	return categoryRepo, productRepo, NewCategoryService(categoryRepo, productRepo)
}

// Feature: storefront, Property 19: Category names are unique
// Validates: Requirements 4.1
func TestCategoryService_DuplicateNameRejected(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newCategoryFixture()

	if _, err := svc.Create(ctx, "Coffee", "beans and grounds"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Create(ctx, "Coffee", "a second coffee aisle"); !errors.Is(err, repository.ErrCategoryAlreadyExists) {
		t.Fatalf("expected duplicate category error, got %v", err)
	}

	// Renaming onto an existing name is rejected too
	tea, err := svc.Create(ctx, "Tea", "loose leaf")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := svc.Update(ctx, tea.ID, "Coffee", ""); !errors.Is(err, repository.ErrCategoryAlreadyExists) {
		t.Fatalf("expected duplicate category error on rename, got %v", err)
	}
}

// Feature: storefront, Property 20: Referenced categories cannot be deleted
// Validates: Requirements 4.2
func TestCategoryService_DeleteBlockedWhileReferenced(t *testing.T) {
	ctx := context.Background()
	categoryRepo, productRepo, svc := newCategoryFixture()

	category, err := svc.Create(ctx, "Grinders", "burr and blade")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		product := newTestProduct("Grinder", 40.00, 5)
		product.ID = uuid.New()
		product.CategoryID = &category.ID
		productRepo.add(product)
	}

	err = svc.Delete(ctx, category.ID)
	if !errors.Is(err, ErrCategoryInUse) {
		t.Fatalf("expected category-in-use error, got %v", err)
	}
	if !strings.Contains(err.Error(), "3 products") {
		t.Errorf("error should carry the reference count, got %q", err.Error())
	}
	if _, err := categoryRepo.FindByID(ctx, category.ID); err != nil {
		t.Errorf("blocked delete must leave the category in place")
	}

	// Once nothing references it the delete goes through
	productRepo.mu.Lock()
	for id := range productRepo.products {
		productRepo.products[id].CategoryID = nil
	}
	productRepo.mu.Unlock()

	if err := svc.Delete(ctx, category.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := categoryRepo.FindByID(ctx, category.ID); !errors.Is(err, repository.ErrCategoryNotFound) {
		t.Errorf("expected category gone, got %v", err)
	}
}

// Feature: storefront, Property 21: Unknown categories surface not-found
// Validates: Requirements 4.3
func TestCategoryService_NotFound(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newCategoryFixture()

	if _, err := svc.Get(ctx, uuid.New()); !errors.Is(err, repository.ErrCategoryNotFound) {
		t.Errorf("expected not found on Get, got %v", err)
	}
	if _, err := svc.Update(ctx, uuid.New(), "Ghost", ""); !errors.Is(err, repository.ErrCategoryNotFound) {
		t.Errorf("expected not found on Update, got %v", err)
	}
	if err := svc.Delete(ctx, uuid.New()); !errors.Is(err, repository.ErrCategoryNotFound) {
		t.Errorf("expected not found on Delete, got %v", err)
	}
}
