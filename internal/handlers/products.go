package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/pagination"
	"github.com/campus-merch/api/internal/services"
)

// ProductHandlers serves the public catalog and product review reads.
type ProductHandlers struct {
	catalog services.CatalogService
	reviews services.ReviewService
}

// NewProductHandlers constructs product read handlers.
func NewProductHandlers(catalog services.CatalogService, reviews services.ReviewService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog, reviews: reviews}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
	r.Get("/{productID}/reviews", h.listReviews)
	r.Get("/{productID}/reviews:summary", h.reviewSummary)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	filter, ok := productFilterFromRequest(w, r)
	if !ok {
		return
	}
	filter.IncludeInactive = false

	page, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductList(page))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(ctx, productID, false)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *ProductHandlers) listReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	page, ok := pageParams(w, r)
	if !ok {
		return
	}
	result, err := h.reviews.ListProductReviews(ctx, productID, page)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	items := make([]reviewPayload, 0, len(result.Items))
	for _, review := range result.Items {
		items = append(items, buildPublicReviewPayload(review))
	}
	httpx.WriteJSON(w, http.StatusOK, reviewListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *ProductHandlers) reviewSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reviews == nil {
		serviceUnavailable(ctx, w, "review")
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	summary, err := h.reviews.ProductSummary(ctx, productID)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	distribution := make(map[string]int, 5)
	for rating := 1; rating <= 5; rating++ {
		distribution[strconv.Itoa(rating)] = summary.Distribution[rating]
	}
	httpx.WriteJSON(w, http.StatusOK, reviewSummaryResponse{
		ProductID:    summary.ProductID,
		Average:      summary.Average,
		Count:        summary.Count,
		Distribution: distribution,
	})
}

func productFilterFromRequest(w http.ResponseWriter, r *http.Request) (services.ProductListFilter, bool) {
	page, ok := pageParams(w, r)
	if !ok {
		return services.ProductListFilter{}, false
	}
	query := r.URL.Query()
	featured, err := pagination.Bool(query, "featured")
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.BadRequest(err.Error()))
		return services.ProductListFilter{}, false
	}
	filter := services.ProductListFilter{
		Featured:   featured,
		SearchTerm: strings.TrimSpace(query.Get("q")),
		Pagination: page,
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("category"))); raw != "" {
		category := domain.ProductCategory(raw)
		filter.Category = &category
	}
	return filter, true
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productListResponse struct {
	Items         []productPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type productPayload struct {
	ID               string                  `json:"id"`
	Name             string                  `json:"name"`
	Description      string                  `json:"description,omitempty"`
	Category         string                  `json:"category"`
	SKU              string                  `json:"sku"`
	Price            int64                   `json:"price"`
	DiscountPercent  float64                 `json:"discount_percent,omitempty"`
	FinalPrice       int64                   `json:"final_price"`
	Currency         string                  `json:"currency"`
	Stock            int                     `json:"stock"`
	Variants         []productVariantPayload `json:"variants,omitempty"`
	Images           []string                `json:"images,omitempty"`
	Tags             []string                `json:"tags,omitempty"`
	MinOrderQuantity int                     `json:"min_order_quantity"`
	MaxOrderQuantity int                     `json:"max_order_quantity"`
	Featured         bool                    `json:"featured"`
	Rating           productRatingPayload    `json:"rating"`
	TotalSold        int                     `json:"total_sold"`
	IsActive         bool                    `json:"is_active"`
	CreatedAt        string                  `json:"created_at"`
	UpdatedAt        string                  `json:"updated_at,omitempty"`
}

type productVariantPayload struct {
	Type    string                 `json:"type"`
	Options []variantOptionPayload `json:"options"`
}

type variantOptionPayload struct {
	Value         string `json:"value"`
	PriceModifier int64  `json:"price_modifier"`
	Stock         int    `json:"stock"`
}

type productRatingPayload struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

func buildProductList(page domain.CursorPage[services.Product]) productListResponse {
	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product))
	}
	return productListResponse{Items: items, NextPageToken: page.NextPageToken}
}

func buildProductPayload(product services.Product) productPayload {
	payload := productPayload{
		ID:               product.ID,
		Name:             product.Name,
		Description:      product.Description,
		Category:         string(product.Category),
		SKU:              product.SKU,
		Price:            product.Price,
		DiscountPercent:  product.DiscountPercent,
		FinalPrice:       product.FinalPrice(),
		Currency:         domain.DefaultCurrency,
		Stock:            product.Stock,
		Images:           product.Images,
		Tags:             product.Tags,
		MinOrderQuantity: product.MinOrderQuantity,
		MaxOrderQuantity: product.MaxOrderQuantity,
		Featured:         product.Featured,
		Rating:           productRatingPayload{Average: product.Rating.Average, Count: product.Rating.Count},
		TotalSold:        product.Sales.TotalSold,
		IsActive:         product.IsActive,
		CreatedAt:        formatTime(product.CreatedAt),
		UpdatedAt:        formatTime(product.UpdatedAt),
	}
	for _, variant := range product.Variants {
		entry := productVariantPayload{Type: string(variant.Type), Options: make([]variantOptionPayload, 0, len(variant.Options))}
		for _, option := range variant.Options {
			entry.Options = append(entry.Options, variantOptionPayload{
				Value:         option.Value,
				PriceModifier: option.PriceModifier,
				Stock:         option.Stock,
			})
		}
		payload.Variants = append(payload.Variants, entry)
	}
	return payload
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NotFound("product_not_found", "product not found"))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.Conflict("product_conflict", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("catalog_error"))
	}
}
