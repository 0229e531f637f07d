package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Jamessuhh/PRAXXYS-Exam/models"
)

// List categories
// (GET /api/categories)
func (impl *ServerImpl) GetCategories(c *gin.Context) {
	const op = "GetCategories"
	var categories []models.Category
	if result := impl.db.Order("created_at").Find(&categories); result.Error != nil {
		respondInternal(c, op, "Error fetching categories", result.Error)
		return
	}
	c.JSON(http.StatusOK, categories)
}
