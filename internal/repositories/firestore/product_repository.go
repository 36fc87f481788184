package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/campus-merch/api/internal/domain"
	pfirestore "github.com/campus-merch/api/internal/platform/firestore"
	"github.com/campus-merch/api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products and their stock counters.
type ProductRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	return &ProductRepository{
		provider: provider,
		base:     pfirestore.NewCollection[productDocument](provider, productsCollection),
		now:      time.Now,
	}, nil
}

// Insert stores a new product. The ID must be unique.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Create(ctx, id, encodeProductDocument(product))
}

// Update replaces the persisted product.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Replace(ctx, id, encodeProductDocument(product))
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Product]{}, errors.New("product repository not initialised")
	}
	limit, fetch := pageLimits(filter.Pagination.PageSize)
	startAfter, err := decodeCreatedCursor(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, fmt.Errorf("product repository: %w", err)
	}
	term := firstSearchTerm(filter.SearchTerm)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if !filter.IncludeInactive {
			q = q.Where("isActive", "==", true)
		}
		if filter.Category != nil {
			q = q.Where("category", "==", string(*filter.Category))
		}
		if filter.Featured != nil {
			q = q.Where("featured", "==", *filter.Featured)
		}
		if term != "" {
			q = q.Where("searchTerms", "array-contains", term)
		}
		return newestFirst(q, startAfter, fetch)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	next := ""
	if limit > 0 && len(docs) == fetch {
		last := docs[limit-1]
		next = encodeCreatedCursor(last.Data.CreatedAt, last.ID)
		docs = docs[:limit]
	}
	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		items = append(items, doc.Data.toDomain(doc.ID))
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: next}, nil
}

// DecrementStock subtracts every line from stock in a single transaction. All product
// documents are read before any write, and a shortfall on any line aborts the whole batch.
func (r *ProductRepository) DecrementStock(ctx context.Context, lines []repositories.StockLine) error {
	return r.adjustStock(ctx, "products.decrement_stock", lines, -1)
}

// RestoreStock adds every line back to stock and reverses the sales counters.
func (r *ProductRepository) RestoreStock(ctx context.Context, lines []repositories.StockLine) error {
	return r.adjustStock(ctx, "products.restore_stock", lines, 1)
}

func (r *ProductRepository) adjustStock(ctx context.Context, op string, lines []repositories.StockLine, sign int) error {
	if r == nil || r.provider == nil {
		return errors.New("product repository not initialised")
	}
	merged, err := mergeStockLines(lines)
	if err != nil {
		return err
	}
	if len(merged) == 0 {
		return nil
	}
	now := r.now().UTC()

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, 0, len(merged))
		for _, line := range merged {
			ref, err := r.base.Ref(ctx, line.ProductID)
			if err != nil {
				return err
			}
			refs = append(refs, ref)
		}
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}

		updates := make([][]firestore.Update, len(merged))
		for i, line := range merged {
			snap := snaps[i]
			if snap == nil || !snap.Exists() {
				return repositories.NewInventoryError(repositories.InventoryErrorProductNotFound, line.ProductID, status.Error(codes.NotFound, "product not found"))
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", line.ProductID, err)
			}
			if sign < 0 && doc.Stock < line.Quantity {
				invErr := repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, line.ProductID, nil)
				invErr.Available = doc.Stock
				invErr.Requested = line.Quantity
				return invErr
			}
			sold := doc.Sales.TotalSold - sign*line.Quantity
			revenue := doc.Sales.Revenue - int64(sign)*line.Revenue
			if sold < 0 {
				sold = 0
			}
			if revenue < 0 {
				revenue = 0
			}
			updates[i] = []firestore.Update{
				{Path: "stock", Value: doc.Stock + sign*line.Quantity},
				{Path: "sales.totalSold", Value: sold},
				{Path: "sales.revenue", Value: revenue},
				{Path: "updatedAt", Value: now},
			}
		}
		for i, ref := range refs {
			if err := tx.Update(ref, updates[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapInventoryError(op, err)
	}
	return nil
}

// UpdateRating overwrites the rating aggregate without touching the rest of the document.
func (r *ProductRepository) UpdateRating(ctx context.Context, productID string, rating domain.ProductRating, updatedAt time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product repository: product id is required")
	}
	return r.base.Update(ctx, productID, []firestore.Update{
		{Path: "rating.average", Value: rating.Average},
		{Path: "rating.count", Value: rating.Count},
		{Path: "updatedAt", Value: updatedAt.UTC()},
	})
}

func mergeStockLines(lines []repositories.StockLine) ([]repositories.StockLine, error) {
	byID := make(map[string]*repositories.StockLine, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.ProductID)
		if id == "" {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidLine, "", errors.New("product id is required"))
		}
		if line.Quantity <= 0 {
			return nil, repositories.NewInventoryError(repositories.InventoryErrorInvalidLine, id, fmt.Errorf("quantity %d must be positive", line.Quantity))
		}
		if existing, ok := byID[id]; ok {
			existing.Quantity += line.Quantity
			existing.Revenue += line.Revenue
			continue
		}
		copyLine := line
		copyLine.ProductID = id
		byID[id] = &copyLine
		order = append(order, id)
	}
	// Stable order keeps transaction reads deterministic.
	sort.Strings(order)
	out := make([]repositories.StockLine, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}

type productDocument struct {
	Name             string                   `firestore:"name"`
	Description      string                   `firestore:"description"`
	Category         string                   `firestore:"category"`
	SKU              string                   `firestore:"sku"`
	Price            int64                    `firestore:"price"`
	DiscountPercent  float64                  `firestore:"discountPercent"`
	Stock            int                      `firestore:"stock"`
	Variants         []productVariantDocument `firestore:"variants,omitempty"`
	Images           []string                 `firestore:"images,omitempty"`
	Tags             []string                 `firestore:"tags,omitempty"`
	SearchTerms      []string                 `firestore:"searchTerms,omitempty"`
	MinOrderQuantity int                      `firestore:"minOrderQuantity"`
	MaxOrderQuantity int                      `firestore:"maxOrderQuantity"`
	Featured         bool                     `firestore:"featured"`
	Rating           productRatingDocument    `firestore:"rating"`
	Sales            productSalesDocument     `firestore:"sales"`
	IsActive         bool                     `firestore:"isActive"`
	CreatedBy        string                   `firestore:"createdBy,omitempty"`
	CreatedAt        time.Time                `firestore:"createdAt"`
	UpdatedAt        time.Time                `firestore:"updatedAt"`
}

type productVariantDocument struct {
	Type    string                  `firestore:"type"`
	Options []variantOptionDocument `firestore:"options"`
}

type variantOptionDocument struct {
	Value         string `firestore:"value"`
	PriceModifier int64  `firestore:"priceModifier"`
	Stock         int    `firestore:"stock"`
}

type productRatingDocument struct {
	Average float64 `firestore:"average"`
	Count   int     `firestore:"count"`
}

type productSalesDocument struct {
	TotalSold int   `firestore:"totalSold"`
	Revenue   int64 `firestore:"revenue"`
}

func encodeProductDocument(p domain.Product) productDocument {
	doc := productDocument{
		Name:             p.Name,
		Description:      p.Description,
		Category:         string(p.Category),
		SKU:              p.SKU,
		Price:            p.Price,
		DiscountPercent:  p.DiscountPercent,
		Stock:            p.Stock,
		Images:           cloneStrings(p.Images),
		Tags:             cloneStrings(p.Tags),
		SearchTerms:      productSearchTerms(p),
		MinOrderQuantity: p.MinOrderQuantity,
		MaxOrderQuantity: p.MaxOrderQuantity,
		Featured:         p.Featured,
		Rating:           productRatingDocument{Average: p.Rating.Average, Count: p.Rating.Count},
		Sales:            productSalesDocument{TotalSold: p.Sales.TotalSold, Revenue: p.Sales.Revenue},
		IsActive:         p.IsActive,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt.UTC(),
		UpdatedAt:        p.UpdatedAt.UTC(),
	}
	for _, variant := range p.Variants {
		vd := productVariantDocument{Type: string(variant.Type)}
		for _, opt := range variant.Options {
			vd.Options = append(vd.Options, variantOptionDocument{Value: opt.Value, PriceModifier: opt.PriceModifier, Stock: opt.Stock})
		}
		doc.Variants = append(doc.Variants, vd)
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	p := domain.Product{
		ID:               id,
		Name:             d.Name,
		Description:      d.Description,
		Category:         domain.ProductCategory(d.Category),
		SKU:              d.SKU,
		Price:            d.Price,
		DiscountPercent:  d.DiscountPercent,
		Stock:            d.Stock,
		Images:           cloneStrings(d.Images),
		Tags:             cloneStrings(d.Tags),
		MinOrderQuantity: d.MinOrderQuantity,
		MaxOrderQuantity: d.MaxOrderQuantity,
		Featured:         d.Featured,
		Rating:           domain.ProductRating{Average: d.Rating.Average, Count: d.Rating.Count},
		Sales:            domain.ProductSales{TotalSold: d.Sales.TotalSold, Revenue: d.Sales.Revenue},
		IsActive:         d.IsActive,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	for _, variant := range d.Variants {
		v := domain.ProductVariant{Type: domain.VariantType(variant.Type)}
		for _, opt := range variant.Options {
			v.Options = append(v.Options, domain.VariantOption{Value: opt.Value, PriceModifier: opt.PriceModifier, Stock: opt.Stock})
		}
		p.Variants = append(p.Variants, v)
	}
	return p
}

// productSearchTerms indexes lowercase name words, tags and the SKU for array-contains lookups.
func productSearchTerms(p domain.Product) []string {
	seen := map[string]struct{}{}
	var terms []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if len(term) < 2 {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}
	for _, word := range splitWords(p.Name) {
		add(word)
	}
	for _, tag := range p.Tags {
		add(tag)
	}
	add(p.SKU)
	return terms
}

func firstSearchTerm(raw string) string {
	words := splitWords(raw)
	if len(words) == 0 {
		return ""
	}
	return strings.ToLower(words[0])
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
}
