package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"kairos/launch/internal/product"
	"kairos/launch/internal/service"
	"kairos/launch/pkg/response"
)

type ProductHandler struct {
	catalog service.ProductCatalog
}

func NewProductHandler(catalog service.ProductCatalog) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// EnvVarField is a variable the installer form asks the buyer for.
type EnvVarField struct {
	Key         string                  `json:"key"`
	Required    bool                    `json:"required"`
	Description string                  `json:"description,omitempty"`
	Validation  *product.ValueValidator `json:"validation,omitempty"`
}

type ProductView struct {
	Product     product.Info  `json:"product"`
	Platform    string        `json:"platform"`
	ItemID      string        `json:"itemId"`
	Framework   string        `json:"framework"`
	UserEnvVars []EnvVarField `json:"userEnvVars"`
}

// Get returns the public part of a product config. Static env values and the
// repository location stay server-side.
func (h *ProductHandler) Get(c *gin.Context) {
	cfg, err := h.catalog.Load(c.Param("productId"))
	if err != nil {
		if errors.Is(err, product.ErrNotFound) || errors.Is(err, product.ErrInvalidID) {
			response.NotFound(c, "product not found")
			return
		}
		response.InternalError(c, "failed to load product")
		return
	}

	view := ProductView{
		Product:     cfg.Product,
		Platform:    cfg.Marketplace.Platform,
		ItemID:      cfg.Marketplace.ItemID,
		Framework:   cfg.Deployment.Framework,
		UserEnvVars: []EnvVarField{},
	}
	for _, v := range cfg.Deployment.RequiredEnvVars {
		if !v.UserInput {
			continue
		}
		view.UserEnvVars = append(view.UserEnvVars, EnvVarField{
			Key:         v.Key,
			Required:    v.Required,
			Description: v.Description,
			Validation:  v.Validation,
		})
	}
	response.Success(c, view)
}
