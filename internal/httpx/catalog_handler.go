package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lintangstore/go-storefront/internal/catalog"
)

type CatalogHandler struct {
	Repo *catalog.Repo
}

type productReq struct {
	SKU               string          `json:"sku"`
	CategoryID        string          `json:"category_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	ImageURL          string          `json:"image_url"`
	Price             decimal.Decimal `json:"price"`
	TotalStock        int             `json:"total_stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type productResp struct {
	ID                string          `json:"id"`
	SKU               string          `json:"sku"`
	CategoryID        string          `json:"category_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	ImageURL          string          `json:"image_url,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Status            string          `json:"status"`
	TotalStock        int             `json:"total_stock"`
	AvailableStock    int             `json:"available_stock"`
	ReservedStock     int             `json:"reserved_stock"`
	SoldCount         int             `json:"sold_count"`
	LowStockThreshold int             `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toProductResp(p *catalog.Product) productResp {
	return productResp{
		ID:                p.ID,
		SKU:               p.SKU,
		CategoryID:        p.CategoryID,
		Name:              p.Name,
		Description:       p.Description,
		ImageURL:          p.ImageURL,
		Price:             p.Price,
		Status:            string(p.Status),
		TotalStock:        p.TotalStock,
		AvailableStock:    p.AvailableStock,
		ReservedStock:     p.ReservedStock,
		SoldCount:         p.SoldCount,
		LowStockThreshold: p.LowStockThreshold,
		CreatedAt:         p.CreatedAt,
	}
}

type categoryReq struct {
	ParentID  *string `json:"parent_id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	SortOrder int     `json:"sort_order"`
}

type categoryResp struct {
	ID        string  `json:"id"`
	ParentID  *string `json:"parent_id,omitempty"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	SortOrder int     `json:"sort_order"`
}

func toCategoryResp(c *catalog.Category) categoryResp {
	return categoryResp{ID: c.ID, ParentID: c.ParentID, Name: c.Name, Slug: c.Slug, SortOrder: c.SortOrder}
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Post("/products", h.createProduct)
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products/{id}/stock", h.addStock)
	r.Post("/categories", h.createCategory)
	r.Get("/categories", h.listRootCategories)
	r.Get("/categories/{id}", h.getCategory)
	r.Get("/categories/{id}/children", h.listChildCategories)
	r.Get("/categories/{id}/products", h.listCategoryProducts)
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}
	if req.SKU == "" || req.Name == "" || req.Price.IsNegative() || req.TotalStock < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "sku, name, non-negative price and stock required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := &catalog.Product{
		SKU:               req.SKU,
		CategoryID:        req.CategoryID,
		Name:              req.Name,
		Description:       req.Description,
		ImageURL:          req.ImageURL,
		Price:             req.Price,
		TotalStock:        req.TotalStock,
		AvailableStock:    req.TotalStock,
		LowStockThreshold: req.LowStockThreshold,
	}
	if err := h.Repo.CreateProduct(ctx, p); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductResp(p))
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Repo.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResp(p))
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var (
		list []catalog.Product
		err  error
	)
	if r.URL.Query().Get("low_stock") == "true" {
		list, err = h.Repo.ListLowStock(ctx)
	} else {
		list, err = h.Repo.ListProducts(ctx)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeProductList(w, list)
}

func (h *CatalogHandler) listCategoryProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListProductsByCategory(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeProductList(w, list)
}

func writeProductList(w http.ResponseWriter, list []catalog.Product) {
	out := make([]productResp, 0, len(list))
	for i := range list {
		out = append(out, toProductResp(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type addStockReq struct {
	Qty int `json:"qty"`
}

func (h *CatalogHandler) addStock(w http.ResponseWriter, r *http.Request) {
	var req addStockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Qty <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "qty must be positive")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Repo.AddStock(ctx, chi.URLParam(r, "id"), req.Qty); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json")
		return
	}
	if req.Name == "" || req.Slug == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "name and slug required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c := &catalog.Category{ParentID: req.ParentID, Name: req.Name, Slug: req.Slug, SortOrder: req.SortOrder}
	if err := h.Repo.CreateCategory(ctx, c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryResp(c))
}

func (h *CatalogHandler) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.Repo.GetCategory(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryResp(c))
}

func (h *CatalogHandler) listRootCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListRootCategories(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeCategoryList(w, list)
}

func (h *CatalogHandler) listChildCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Repo.ListChildCategories(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeCategoryList(w, list)
}

func writeCategoryList(w http.ResponseWriter, list []catalog.Category) {
	out := make([]categoryResp, 0, len(list))
	for i := range list {
		out = append(out, toCategoryResp(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
