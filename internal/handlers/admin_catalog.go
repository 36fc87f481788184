package handlers

import (
	"net/http"
	"strings"

	domain "github.com/campus-merch/api/internal/domain"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/services"
)

const maxCatalogRequestBody = 256 * 1024

type productRequest struct {
	Name             string                  `json:"name"`
	Description      string                  `json:"description,omitempty"`
	Category         string                  `json:"category"`
	SKU              string                  `json:"sku,omitempty"`
	Price            int64                   `json:"price"`
	DiscountPercent  float64                 `json:"discount_percent,omitempty"`
	Stock            int                     `json:"stock"`
	Variants         []productVariantPayload `json:"variants,omitempty"`
	Images           []string                `json:"images,omitempty"`
	Tags             []string                `json:"tags,omitempty"`
	MinOrderQuantity int                     `json:"min_order_quantity,omitempty"`
	MaxOrderQuantity int                     `json:"max_order_quantity,omitempty"`
	Featured         bool                    `json:"featured,omitempty"`
	IsActive         *bool                   `json:"is_active,omitempty"`
}

func (req productRequest) command(productID, actorID string) services.UpsertProductCommand {
	cmd := services.UpsertProductCommand{
		ProductID:        productID,
		Name:             strings.TrimSpace(req.Name),
		Description:      strings.TrimSpace(req.Description),
		Category:         domain.ProductCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		SKU:              strings.ToUpper(strings.TrimSpace(req.SKU)),
		Price:            req.Price,
		DiscountPercent:  req.DiscountPercent,
		Stock:            req.Stock,
		Images:           trimAll(req.Images),
		Tags:             trimAll(req.Tags),
		MinOrderQuantity: req.MinOrderQuantity,
		MaxOrderQuantity: req.MaxOrderQuantity,
		Featured:         req.Featured,
		IsActive:         req.IsActive,
		ActorID:          actorID,
	}
	for _, variant := range req.Variants {
		entry := domain.ProductVariant{Type: domain.VariantType(strings.ToLower(strings.TrimSpace(variant.Type)))}
		for _, option := range variant.Options {
			entry.Options = append(entry.Options, domain.VariantOption{
				Value:         strings.TrimSpace(option.Value),
				PriceModifier: option.PriceModifier,
				Stock:         option.Stock,
			})
		}
		cmd.Variants = append(cmd.Variants, entry)
	}
	return cmd
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	filter, ok := productFilterFromRequest(w, r)
	if !ok {
		return
	}
	filter.IncludeInactive = true
	page, err := h.svc.Catalog.ListProducts(ctx, filter)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildProductList(page))
}

func (h *AdminHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	product, err := h.svc.Catalog.GetProduct(ctx, productID, true)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	h.saveProduct(w, r, productID)
}

func (h *AdminHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.svc.Catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req productRequest
	if err := httpx.DecodeJSON(r, &req, maxCatalogRequestBody, false); err != nil {
		httpx.WriteError(ctx, w, *err)
		return
	}

	cmd := req.command(productID, identity.UID)
	var (
		product services.Product
		err     error
		status  = http.StatusOK
	)
	if productID == "" {
		product, err = h.svc.Catalog.CreateProduct(ctx, cmd)
		status = http.StatusCreated
	} else {
		product, err = h.svc.Catalog.UpdateProduct(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.svc.Catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	productID, ok := pathParam(w, r, "productID", "product id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteProduct(ctx, services.DeleteProductCommand{ProductID: productID, ActorID: identity.UID}); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
