package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/textutil"
	"github.com/campus-merch/api/internal/repositories"
)

const (
	productIDPrefix = "prd_"

	productEventCreated = "product.created"
	productEventUpdated = "product.updated"
	productEventDeleted = "product.deleted"

	defaultMinOrderQuantity = 1
	defaultMaxOrderQuantity = 10
	maxProductPageSize      = 100
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product does not exist or is inactive.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates a duplicate product id.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
	SKUSuffix   domain.SuffixFunc
	Events      EventPublisher
	Logger      Logger
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	suffix   domain.SuffixFunc
	sink     eventSink
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return productIDPrefix + ulid.Make().String() }
	}
	suffix := deps.SKUSuffix
	if suffix == nil {
		suffix = domain.RandomBase36
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		suffix: suffix,
		sink:   eventSink{events: deps.Events, logger: logger, prefix: "catalog"},
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	product, err := normalizeProduct(cmd)
	if err != nil {
		return Product{}, err
	}
	now := s.clock()
	product.ID = s.newID()
	if product.SKU == "" {
		product.SKU = domain.ProductSKU(product.Category, s.suffix)
	}
	product.IsActive = cmd.IsActive == nil || *cmd.IsActive
	product.CreatedBy = strings.TrimSpace(cmd.ActorID)
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          productEventCreated,
		AggregateType: "product",
		AggregateID:   product.ID,
		ActorID:       product.CreatedBy,
		OccurredAt:    now,
		Metadata:      map[string]any{"sku": product.SKU, "category": string(product.Category)},
	})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	existing, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	next, err := normalizeProduct(cmd)
	if err != nil {
		return Product{}, err
	}

	next.ID = existing.ID
	if next.SKU == "" {
		next.SKU = existing.SKU
	}
	next.IsActive = existing.IsActive
	if cmd.IsActive != nil {
		next.IsActive = *cmd.IsActive
	}
	// counters are owned by orders and reviews, never by catalog edits.
	next.Rating = existing.Rating
	next.Sales = existing.Sales
	next.CreatedBy = existing.CreatedBy
	next.CreatedAt = existing.CreatedAt
	next.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, next); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          productEventUpdated,
		AggregateType: "product",
		AggregateID:   next.ID,
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    next.UpdatedAt,
	})
	return next, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, cmd DeleteProductCommand) error {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if !product.IsActive {
		return nil
	}
	product.IsActive = false
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return s.mapRepositoryError(err)
	}
	s.sink.publish(ctx, DomainEvent{
		Type:          productEventDeleted,
		AggregateType: "product",
		AggregateID:   product.ID,
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    product.UpdatedAt,
	})
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	if !product.IsActive && !includeInactive {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	if filter.Category != nil && !slices.Contains(domain.ProductCategories, *filter.Category) {
		return domain.CursorPage[Product]{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, *filter.Category)
	}
	if filter.Pagination.PageSize > maxProductPageSize {
		filter.Pagination.PageSize = maxProductPageSize
	}
	filter.SearchTerm = strings.TrimSpace(filter.SearchTerm)
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}

func normalizeProduct(cmd UpsertProductCommand) (Product, error) {
	product := Product{
		Name:             textutil.PlainText(cmd.Name),
		Description:      textutil.PlainText(cmd.Description),
		Category:         domain.ProductCategory(strings.ToLower(strings.TrimSpace(string(cmd.Category)))),
		SKU:              strings.ToUpper(strings.TrimSpace(cmd.SKU)),
		Price:            cmd.Price,
		DiscountPercent:  cmd.DiscountPercent,
		Stock:            cmd.Stock,
		Images:           normalizeTags(cmd.Images),
		Tags:             normalizeTags(cmd.Tags),
		MinOrderQuantity: cmd.MinOrderQuantity,
		MaxOrderQuantity: cmd.MaxOrderQuantity,
		Featured:         cmd.Featured,
	}
	if product.MinOrderQuantity == 0 {
		product.MinOrderQuantity = defaultMinOrderQuantity
	}
	if product.MaxOrderQuantity == 0 {
		product.MaxOrderQuantity = defaultMaxOrderQuantity
	}

	switch {
	case product.Name == "":
		return Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	case !slices.Contains(domain.ProductCategories, product.Category):
		return Product{}, fmt.Errorf("%w: unknown category %q", ErrCatalogInvalidInput, cmd.Category)
	case product.Price < 0:
		return Product{}, fmt.Errorf("%w: price must be >= 0", ErrCatalogInvalidInput)
	case product.DiscountPercent < 0 || product.DiscountPercent > 100:
		return Product{}, fmt.Errorf("%w: discount percent must be between 0 and 100", ErrCatalogInvalidInput)
	case product.Stock < 0:
		return Product{}, fmt.Errorf("%w: stock must be >= 0", ErrCatalogInvalidInput)
	case product.MinOrderQuantity < 1:
		return Product{}, fmt.Errorf("%w: min order quantity must be >= 1", ErrCatalogInvalidInput)
	case product.MaxOrderQuantity < product.MinOrderQuantity:
		return Product{}, fmt.Errorf("%w: max order quantity must be >= min order quantity", ErrCatalogInvalidInput)
	}

	variants, err := normalizeVariants(cmd.Variants)
	if err != nil {
		return Product{}, err
	}
	product.Variants = variants
	return product, nil
}

func normalizeVariants(variants []ProductVariant) ([]ProductVariant, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	out := make([]ProductVariant, 0, len(variants))
	seenTypes := make(map[domain.VariantType]struct{}, len(variants))
	for _, variant := range variants {
		kind := domain.VariantType(strings.ToLower(strings.TrimSpace(string(variant.Type))))
		switch kind {
		case domain.VariantTypeSize, domain.VariantTypeColor, domain.VariantTypeMaterial, domain.VariantTypeOther:
		default:
			return nil, fmt.Errorf("%w: unknown variant type %q", ErrCatalogInvalidInput, variant.Type)
		}
		if _, dup := seenTypes[kind]; dup {
			return nil, fmt.Errorf("%w: duplicate variant type %q", ErrCatalogInvalidInput, kind)
		}
		seenTypes[kind] = struct{}{}

		options := make([]domain.VariantOption, 0, len(variant.Options))
		seenValues := make(map[string]struct{}, len(variant.Options))
		for _, option := range variant.Options {
			value := textutil.PlainText(option.Value)
			if value == "" {
				return nil, fmt.Errorf("%w: variant option value is required", ErrCatalogInvalidInput)
			}
			key := strings.ToLower(value)
			if _, dup := seenValues[key]; dup {
				return nil, fmt.Errorf("%w: duplicate %s option %q", ErrCatalogInvalidInput, kind, value)
			}
			seenValues[key] = struct{}{}
			if option.Stock < 0 {
				return nil, fmt.Errorf("%w: variant option stock must be >= 0", ErrCatalogInvalidInput)
			}
			options = append(options, domain.VariantOption{Value: value, PriceModifier: option.PriceModifier, Stock: option.Stock})
		}
		out = append(out, ProductVariant{Type: kind, Options: options})
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
