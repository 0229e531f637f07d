package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

// 錯誤分類：
//   - ValidationError: 輸入不合法，回 422，逐欄位列出違規內容
//   - not found:       目標商品不存在，回 404
//   - UploadError:     blob 寫入失敗，回 500 並中止整個請求
//   - internal:        其他資料庫或 IO 錯誤，記錄完整原因後回 500

// ValidationError 收集一次請求中所有違規的欄位
type ValidationError struct {
	Fields map[string][]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

func (e *ValidationError) Add(field, message string) {
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Any() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed on %s", strings.Join(fields, ", "))
}

// UploadError 代表圖片寫入 blob store 失敗
type UploadError struct {
	Path string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("fail to upload %s: %v", e.Path, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func respondValidation(c *gin.Context, vErr *ValidationError) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": "The given data was invalid.",
		"error":   vErr.Error(),
		"errors":  vErr.Fields,
	})
}

func respondNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"message": "Product not found",
		"error":   "The requested product does not exist",
	})
}

// respondInternal 在回應 500 之前記錄 op、識別資訊與底層原因
func respondInternal(c *gin.Context, op, message string, err error, attrs ...any) {
	attrs = append([]any{slog.String("op", op), slog.Any("error", err)}, attrs...)
	slog.Error(message, attrs...)
	c.JSON(http.StatusInternalServerError, gin.H{
		"message": message,
		"error":   err.Error(),
	})
}
