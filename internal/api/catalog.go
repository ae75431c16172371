package api

import (
	"log"
	"net/http"

	"whatsapp-commerce/internal/catalog"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	Catalog *catalog.Store
}

func NewCatalogHandler(cat *catalog.Store) *CatalogHandler {
	return &CatalogHandler{Catalog: cat}
}

func (h *CatalogHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.Catalog.Get())
}

// Save replaces the whole catalog document. Partial updates are not
// supported; the dashboard always posts the full document.
func (h *CatalogHandler) Save(c *gin.Context) {
	var cat catalog.Catalog
	if err := c.ShouldBindJSON(&cat); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid catalog document"})
		return
	}
	if err := h.Catalog.Save(cat); err != nil {
		log.Printf("[catalog:save] %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Falha ao salvar configuração"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
