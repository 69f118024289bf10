package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingsyncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	productservice "github.com/smallbiznis/cookiejar/internal/product/service"
	unitdomain "github.com/smallbiznis/cookiejar/internal/productunit/domain"
)

type listProductsQuery struct {
	Available string `form:"available"`
	Featured  string `form:"featured"`
	Category  string `form:"category"`
	SortBy    string `form:"sort_by"`
	OrderBy   string `form:"order_by"`
}

// ListStoreProducts serves the storefront catalog: available products only.
func (s *Server) ListStoreProducts(c *gin.Context) {
	var query listProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	available := true
	resp, err := s.catalogSvc.ListProducts(c.Request.Context(), productdomain.ListRequest{
		Available: &available,
		Category:  strings.TrimSpace(query.Category),
		SortBy:    strings.TrimSpace(query.SortBy),
		OrderBy:   strings.TrimSpace(query.OrderBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListFeaturedProducts(c *gin.Context) {
	available, featured := true, true
	resp, err := s.catalogSvc.ListProducts(c.Request.Context(), productdomain.ListRequest{
		Available: &available,
		Featured:  &featured,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetStoreProduct(c *gin.Context) {
	resp, err := s.catalogSvc.GetProduct(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !resp.IsAvailable {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query listProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	available, err := parseOptionalBool(query.Available)
	if err != nil {
		AbortWithError(c, newValidationError("available", "invalid_available", "invalid available"))
		return
	}
	featured, err := parseOptionalBool(query.Featured)
	if err != nil {
		AbortWithError(c, newValidationError("featured", "invalid_featured", "invalid featured"))
		return
	}

	resp, err := s.catalogSvc.ListProducts(c.Request.Context(), productdomain.ListRequest{
		Available: available,
		Featured:  featured,
		Category:  strings.TrimSpace(query.Category),
		SortBy:    strings.TrimSpace(query.SortBy),
		OrderBy:   strings.TrimSpace(query.OrderBy),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req productdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.CreateProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	resp, err := s.catalogSvc.GetProduct(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	var req productdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("id"))

	resp, err := s.catalogSvc.UpdateProduct(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ArchiveProduct hides the product from the storefront and deactivates its
// remote counterpart. Products are never deleted.
func (s *Server) ArchiveProduct(c *gin.Context) {
	resp, err := s.catalogSvc.SetAvailability(c.Request.Context(), strings.TrimSpace(c.Param("id")), false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SyncProduct(c *gin.Context) {
	productID, err := productservice.ParseID(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSyncSvc.SyncProduct(c.Request.Context(), productID, billingsyncdomain.SyncOptions{ForceUpdate: true})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListProductUnits(c *gin.Context) {
	resp, err := s.unitSvc.List(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateProductUnit(c *gin.Context) {
	var req unitdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ProductID = strings.TrimSpace(c.Param("id"))

	resp, err := s.unitSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateProductUnit(c *gin.Context) {
	var req unitdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.ID = strings.TrimSpace(c.Param("unit_id"))

	resp, err := s.unitSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteProductUnit(c *gin.Context) {
	if err := s.unitSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("unit_id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
