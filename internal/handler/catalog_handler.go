package handler

import (
	"net/http"

	"opsconsole/internal/middleware"
	"opsconsole/internal/service"
	"opsconsole/pkg/pagination"
	"opsconsole/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/coupons", middleware.RequirePermission("coupons.read"), h.ListCoupons)
	router.GET("/api/promotions", middleware.RequirePermission("promotions.read"), h.ListPromotions)
	router.GET("/api/products", middleware.RequirePermission("catalog.read"), h.ListProducts)
}

// ListCoupons returns coupons created through the approval workflow
// @Summary      List coupons
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/coupons [get]
func (h *CatalogHandler) ListCoupons(c *gin.Context) {
	params := pagination.Parse(c)

	coupons, total, err := h.catalogService.ListCoupons(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   coupons,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// ListPromotions returns promotions and flash sales
// @Summary      List promotions
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/promotions [get]
func (h *CatalogHandler) ListPromotions(c *gin.Context) {
	params := pagination.Parse(c)

	promotions, total, err := h.catalogService.ListPromotions(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   promotions,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// ListProducts returns catalog products
// @Summary      List products
// @Tags         catalog
// @Produce      json
// @Param        search  query  string  false  "Name search"
// @Success      200     {object}  response.Response
// @Router       /api/products [get]
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	params := pagination.Parse(c)

	products, total, err := h.catalogService.ListProducts(c.Request.Context(), params.Page, params.Limit, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   products,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}
