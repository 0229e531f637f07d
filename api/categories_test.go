package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCategoriesReturnsSeeded(t *testing.T) {
	_, router, _, _ := newTestServer(t)

	// 分類列表是公開路由，不需要帶 token
	response := doRequest(router, http.MethodGet, "/api/categories", "", nil, false)
	require.Equal(t, http.StatusOK, response.Code)

	var categories []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &categories))
	var names []string
	for _, category := range categories {
		assert.NotEmpty(t, category.ID)
		names = append(names, category.Name)
	}
	assert.ElementsMatch(t, []string{"Sports", "Electronics", "Clothing", "Books", "Home & Garden"}, names)
}
