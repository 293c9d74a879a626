package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

var ErrCategoryInUse = errors.New("category is referenced by products")

// CategoryService defines the category registry business logic
type CategoryService interface {
	Create(ctx context.Context, name, description string) (*domain.Category, error)
	Update(ctx context.Context, id uuid.UUID, name, description string) (*domain.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*domain.Category, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Category, error)
}

type categoryService struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
}

// NewCategoryService creates a new instance of CategoryService
func NewCategoryService(categoryRepo repository.CategoryRepository, productRepo repository.ProductRepository) CategoryService {
	return &categoryService{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
	}
}

// Create adds a new category; duplicate names are rejected by the store's
// unique index and surface as ErrCategoryAlreadyExists.
func (s *categoryService) Create(ctx context.Context, name, description string) (*domain.Category, error) {
	category := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}

	return category, nil
}

// Update renames or redescribes an existing category
func (s *categoryService) Update(ctx context.Context, id uuid.UUID, name, description string) (*domain.Category, error) {
	category := &domain.Category{
		ID:          id,
		Name:        name,
		Description: description,
	}

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, err
	}

	return s.categoryRepo.FindByID(ctx, id)
}

// Delete removes a category unless any product still references it
func (s *categoryService) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.productRepo.CountByCategory(ctx, id)
	if err != nil {
		return err
	}

	if count > 0 {
		return fmt.Errorf("%w: %d products reference this category", ErrCategoryInUse, count)
	}

	return s.categoryRepo.Delete(ctx, id)
}

// List retrieves all categories
func (s *categoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.categoryRepo.List(ctx)
}

// Get retrieves a single category
func (s *categoryService) Get(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	return s.categoryRepo.FindByID(ctx, id)
}
