package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/storage"

	"github.com/google/uuid"
)

var ErrInvalidProduct = errors.New("invalid product")

// ProductInput carries the fields a caller may set on a product
type ProductInput struct {
	Name        string
	Description string
	Price       float64
	Stock       int
	IsAvailable bool
	CategoryID  *uuid.UUID
}

// ProductService defines the product catalog business logic
type ProductService interface {
	Create(ctx context.Context, input ProductInput, createdBy *uuid.UUID) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error)
	Patch(ctx context.Context, id uuid.UUID, patch repository.ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error)
	UploadImage(ctx context.Context, id uuid.UUID, r io.Reader, contentType string) (*domain.Product, error)
}

type productService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	blobs        storage.BlobStore
}

// NewProductService creates a new instance of ProductService
func NewProductService(
	productRepo repository.ProductRepository,
	categoryRepo repository.CategoryRepository,
	blobs storage.BlobStore,
) ProductService {
	return &productService{
		productRepo:  productRepo,
		categoryRepo: categoryRepo,
		blobs:        blobs,
	}
}

func (s *productService) validateInput(ctx context.Context, input ProductInput) error {
	if input.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if input.Price < 0 {
		return fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if input.Stock < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	if input.CategoryID != nil {
		if _, err := s.categoryRepo.FindByID(ctx, *input.CategoryID); err != nil {
			return err
		}
	}
	return nil
}

// Create adds a new product to the catalog
func (s *productService) Create(ctx context.Context, input ProductInput, createdBy *uuid.UUID) (*domain.Product, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		IsAvailable: input.IsAvailable,
		CategoryID:  input.CategoryID,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// Update replaces all mutable fields of a product
func (s *productService) Update(ctx context.Context, id uuid.UUID, input ProductInput) (*domain.Product, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}

	existing, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.Name = input.Name
	existing.Description = input.Description
	existing.Price = input.Price
	existing.Stock = input.Stock
	existing.IsAvailable = input.IsAvailable
	existing.CategoryID = input.CategoryID
	existing.UpdatedAt = time.Now()

	if err := s.productRepo.Update(ctx, existing); err != nil {
		return nil, err
	}

	return existing, nil
}

// Patch applies a whitelisted partial update
func (s *productService) Patch(ctx context.Context, id uuid.UUID, patch repository.ProductPatch) (*domain.Product, error) {
	if patch.Name != nil && *patch.Name == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidProduct)
	}
	if patch.Price != nil && *patch.Price < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrInvalidProduct)
	}
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, fmt.Errorf("%w: stock cannot be negative", ErrInvalidProduct)
	}
	if patch.CategoryID != nil {
		if _, err := s.categoryRepo.FindByID(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
	}

	if err := s.productRepo.Patch(ctx, id, patch); err != nil {
		return nil, err
	}

	return s.productRepo.FindByID(ctx, id)
}

// Delete removes a product and any stored image blob
func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.productRepo.Delete(ctx, id); err != nil {
		return err
	}

	if product.ImageURL != "" {
		if err := s.blobs.Delete(ctx, product.ImageURL); err != nil {
			return fmt.Errorf("product deleted but image cleanup failed: %w", err)
		}
	}

	return nil
}

// Get retrieves a single product
func (s *productService) Get(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return s.productRepo.FindByID(ctx, id)
}

// List retrieves products with filtering, pagination, and sorting
func (s *productService) List(ctx context.Context, filter repository.ProductFilter, page, pageSize int, sortBy string, sortOrder repository.SortOrder) ([]*domain.Product, int, error) {
	page, pageSize = NormalizePagination(page, pageSize)
	return s.productRepo.List(ctx, filter, page, pageSize, sortBy, sortOrder)
}

// Search performs a case-insensitive text search over name and description
func (s *productService) Search(ctx context.Context, query string, page, pageSize int) ([]*domain.Product, int, error) {
	page, pageSize = NormalizePagination(page, pageSize)
	return s.productRepo.Search(ctx, query, page, pageSize)
}

// UploadImage stores a product image and records its reference, replacing and
// cleaning up any previously stored image.
func (s *productService) UploadImage(ctx context.Context, id uuid.UUID, r io.Reader, contentType string) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	reference, err := s.blobs.Store(ctx, r, contentType)
	if err != nil {
		return nil, err
	}

	previous := product.ImageURL

	if _, err := s.Patch(ctx, id, repository.ProductPatch{ImageURL: &reference}); err != nil {
		if cleanupErr := s.blobs.Delete(ctx, reference); cleanupErr != nil {
			return nil, fmt.Errorf("%w (orphaned blob %s not cleaned up: %v)", err, reference, cleanupErr)
		}
		return nil, err
	}

	if previous != "" {
		if err := s.blobs.Delete(ctx, previous); err != nil {
			return nil, fmt.Errorf("image replaced but previous blob cleanup failed: %w", err)
		}
	}

	return s.productRepo.FindByID(ctx, id)
}

// NormalizePagination clamps page to >= 1 and pageSize to the 1..100 range
func NormalizePagination(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
