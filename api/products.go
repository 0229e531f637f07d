package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	internalS3 "github.com/Jamessuhh/PRAXXYS-Exam/adapters/s3"
	"github.com/Jamessuhh/PRAXXYS-Exam/models"
)

const (
	// 單頁商品數
	perPage = 10
	// 單一圖片的大小上限
	maxImageBytes = 2 << 20
	// 圖片在 blob store 中的命名空間
	imageNamespace = "products/"
)

// DatetimeLayout 是商品時間欄位的標準表示
const DatetimeLayout = "2006-01-02 15:04:05"

// datetimeLayouts 列出可接受的輸入格式，機器格式優先
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	DatetimeLayout,
	"2006-01-02",
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
}

func parseDatetime(value string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

type imageView struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
}

type productView struct {
	ID          uuid.UUID   `json:"id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Datetime    string      `json:"datetime"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Images      []imageView `json:"images"`
}

// renderProduct 把資料庫模型轉成回應用的形狀，圖片的公開 URL 在這裡補上
func (impl *ServerImpl) renderProduct(product models.Product) productView {
	return productView{
		ID:          product.ID,
		Name:        product.Name,
		Category:    product.Category,
		Description: product.Description,
		Datetime:    product.Datetime.Format(DatetimeLayout),
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
		Images: lo.Map(product.Images, func(image models.ProductImage, _ int) imageView {
			return imageView{
				ID:        image.ID,
				ProductID: image.ProductID,
				Path:      image.Path,
				URL:       impl.blobs.URLFor(image.Path),
			}
		}),
	}
}

// collectFileHeaders 取出 field、field[] 或 field[N] 形式的上傳檔案
// 前端以索引命名欄位，依欄位名排序保持上傳順序
func collectFileHeaders(form *multipart.Form, field string) []*multipart.FileHeader {
	var keys []string
	for key := range form.File {
		if key == field || strings.HasPrefix(key, field+"[") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	var files []*multipart.FileHeader
	for _, key := range keys {
		files = append(files, form.File[key]...)
	}
	return files
}

// collectValues 取出 field、field[] 或 field[N] 形式的表單值
// 第二個返回值表示欄位是否出現在請求中，空清單和缺席是不同的語義
func collectValues(form *multipart.Form, field string) ([]string, bool) {
	var keys []string
	for key := range form.Value {
		if key == field || strings.HasPrefix(key, field+"[") {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)
	var values []string
	for _, key := range keys {
		for _, value := range form.Value[key] {
			if value != "" {
				values = append(values, value)
			}
		}
	}
	return values, true
}

func formValue(form *multipart.Form, field string) (string, bool) {
	values, ok := form.Value[field]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

type imageUpload struct {
	data        []byte
	contentType string
	ext         string
}

// validateImages 逐一檢查上傳檔案的大小與實際內容型別
// 違規的檔案以 images.N 欄位記錄到 vErr，合法的檔案返回待上傳內容
func validateImages(files []*multipart.FileHeader, vErr *ValidationError) []imageUpload {
	uploads := make([]imageUpload, 0, len(files))
	for i, header := range files {
		field := fmt.Sprintf("images.%d", i)
		file, err := header.Open()
		if err != nil {
			vErr.Add(field, "The image could not be read.")
			continue
		}
		content, err := io.ReadAll(internalS3.NewMaxSizeReader(file, maxImageBytes))
		file.Close()
		if errors.As(err, &internalS3.ErrReachLimitType) {
			vErr.Add(field, fmt.Sprintf("The image may not be greater than %s.", internalS3.FormatBytes(maxImageBytes)))
			continue
		}
		if err != nil {
			vErr.Add(field, "The image could not be read.")
			continue
		}
		mimeType := http.DetectContentType(content)
		secure, ext := internalS3.CheckSecureImageAndGetExtension(mimeType)
		if !secure {
			vErr.Add(field, fmt.Sprintf("Invalid image type: %s", mimeType))
			continue
		}
		uploads = append(uploads, imageUpload{data: content, contentType: mimeType, ext: ext})
	}
	return uploads
}

func newImagePath(ext string) string {
	return imageNamespace + uuid.New().String() + "." + ext
}

// Add a new product
// (POST /api/products)
func (impl *ServerImpl) PostProduct(c *gin.Context) {
	const op = "PostProduct"
	form, err := c.MultipartForm()
	if err != nil {
		vErr := NewValidationError()
		vErr.Add("form", "The request must be multipart/form-data.")
		respondValidation(c, vErr)
		return
	}

	// 一次收齊所有欄位的違規內容，不會在第一個錯誤就中斷
	vErr := NewValidationError()
	name, _ := formValue(form, "name")
	if name == "" {
		vErr.Add("name", "The name field is required.")
	} else if utf8.RuneCountInString(name) > 255 {
		vErr.Add("name", "The name may not be greater than 255 characters.")
	}
	category, _ := formValue(form, "category")
	if category == "" {
		vErr.Add("category", "The category field is required.")
	}
	description, _ := formValue(form, "description")
	if description == "" {
		vErr.Add("description", "The description field is required.")
	}
	datetimeValue, _ := formValue(form, "datetime")
	var datetime time.Time
	if datetimeValue == "" {
		vErr.Add("datetime", "The datetime field is required.")
	} else {
		var ok bool
		if datetime, ok = parseDatetime(datetimeValue); !ok {
			vErr.Add("datetime", "The datetime is not a valid date.")
		}
	}
	uploads := validateImages(collectFileHeaders(form, "images"), vErr)
	if vErr.Any() {
		respondValidation(c, vErr)
		return
	}

	product := models.Product{
		Name:        name,
		Category:    category,
		Description: impl.htmlChecker.Sanitize(description),
		Datetime:    datetime,
	}
	// 商品與圖片資料列放在同一個交易裡；任何一張圖片寫入失敗就整筆回滾，
	// 並把已經寫進 blob store 的檔案清掉，不留部分狀態
	var stored []string
	txErr := impl.db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&product); result.Error != nil {
			return fmt.Errorf("[%s] Fail to create product, err=%w", op, result.Error)
		}
		for _, upload := range uploads {
			path := newImagePath(upload.ext)
			if _, err := impl.blobs.Upload(c.Request.Context(), path, upload.contentType, upload.data); err != nil {
				return &UploadError{Path: path, Err: err}
			}
			stored = append(stored, path)
			image := models.ProductImage{ProductID: product.ID, Path: path}
			if result := tx.Create(&image); result.Error != nil {
				return fmt.Errorf("[%s] Fail to create product image, err=%w", op, result.Error)
			}
			product.Images = append(product.Images, image)
		}
		return nil
	})
	if txErr != nil {
		for _, path := range stored {
			if err := impl.blobs.Delete(c.Request.Context(), path); err != nil {
				slog.Warn("Fail to clean up stored blob after aborted create", slog.String("op", op), slog.String("path", path), slog.Any("error", err))
			}
		}
		respondInternal(c, op, "Error creating product", txErr, slog.String("name", name))
		return
	}
	c.JSON(http.StatusCreated, impl.renderProduct(product))
}

// List products
// (GET /api/products)
func (impl *ServerImpl) GetProducts(c *gin.Context) {
	const op = "GetProducts"
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}

	query := impl.db.Model(&models.Product{})
	// search 對名稱或描述做不分大小寫的子字串比對
	if search := c.Query("search"); search != "" {
		needle := "%" + strings.ToLower(search) + "%"
		query = query.Where("lower(name) LIKE ? OR lower(description) LIKE ?", needle, needle)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var total int64
	if result := query.Count(&total); result.Error != nil {
		respondInternal(c, op, "Error fetching products", result.Error)
		return
	}
	lastPage := int((total + perPage - 1) / perPage)
	if lastPage < 1 {
		lastPage = 1
	}

	var products []models.Product
	if result := query.Preload("Images").
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "created_at"}, Desc: true},
			{Column: clause.Column{Name: "id"}, Desc: false},
		}}).
		Offset((page - 1) * perPage).Limit(perPage).
		Find(&products); result.Error != nil {
		respondInternal(c, op, "Error fetching products", result.Error)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Products retrieved successfully",
		"products": gin.H{
			"data": lo.Map(products, func(product models.Product, _ int) productView {
				return impl.renderProduct(product)
			}),
			"total":        total,
			"per_page":     perPage,
			"current_page": page,
			"last_page":    lastPage,
		},
	})
}

// Tunnelled update for multipart clients
// (POST /api/products/{id} with _method=PUT)
func (impl *ServerImpl) TunnelUpdateProduct(c *gin.Context) {
	method := strings.ToUpper(c.PostForm("_method"))
	if method != http.MethodPut && method != http.MethodPatch {
		c.JSON(http.StatusMethodNotAllowed, gin.H{
			"message": "Method not allowed",
			"error":   "expected _method=PUT",
		})
		return
	}
	impl.UpdateProduct(c)
}

// Update a product
// (PUT/PATCH /api/products/{id})
func (impl *ServerImpl) UpdateProduct(c *gin.Context) {
	const op = "UpdateProduct"
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondNotFound(c)
		return
	}
	product := models.Product{ID: id}
	if result := impl.db.Preload("Images").First(&product); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondNotFound(c)
			return
		}
		respondInternal(c, op, "Error updating product", result.Error, slog.String("id", id.String()))
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		vErr := NewValidationError()
		vErr.Add("form", "The request must be multipart/form-data.")
		respondValidation(c, vErr)
		return
	}

	// 提供哪些欄位就驗證並更新哪些欄位
	vErr := NewValidationError()
	updates := map[string]any{}
	if name, ok := formValue(form, "name"); ok {
		if name == "" {
			vErr.Add("name", "The name field is required.")
		} else if utf8.RuneCountInString(name) > 255 {
			vErr.Add("name", "The name may not be greater than 255 characters.")
		} else {
			updates["name"] = name
		}
	}
	if category, ok := formValue(form, "category"); ok {
		if category == "" {
			vErr.Add("category", "The category field is required.")
		} else {
			updates["category"] = category
		}
	}
	if description, ok := formValue(form, "description"); ok {
		if description == "" {
			vErr.Add("description", "The description field is required.")
		} else {
			updates["description"] = impl.htmlChecker.Sanitize(description)
		}
	}
	if datetimeValue, ok := formValue(form, "datetime"); ok {
		// 接受機器格式或 locale 日期字串，一律正規化成標準表示
		if datetime, ok := parseDatetime(datetimeValue); ok {
			updates["datetime"] = datetime
		} else {
			vErr.Add("datetime", "The datetime is not a valid date.")
		}
	}
	uploads := validateImages(collectFileHeaders(form, "images"), vErr)
	if vErr.Any() {
		respondValidation(c, vErr)
		return
	}

	// (a) 套用欄位更新
	if len(updates) > 0 {
		if result := impl.db.Model(&product).Updates(updates); result.Error != nil {
			respondInternal(c, op, "Error updating product", result.Error, slog.String("id", id.String()))
			return
		}
	}

	// (b) 上傳並掛上新圖片
	// 這裡的快照讓稍後的保留清單只套用在既有圖片上，新圖片不受影響
	existing := product.Images
	for _, upload := range uploads {
		path := newImagePath(upload.ext)
		if _, err := impl.blobs.Upload(c.Request.Context(), path, upload.contentType, upload.data); err != nil {
			respondInternal(c, op, "Error updating product", &UploadError{Path: path, Err: err}, slog.String("id", id.String()))
			return
		}
		image := models.ProductImage{ProductID: product.ID, Path: path}
		if result := impl.db.Create(&image); result.Error != nil {
			respondInternal(c, op, "Error updating product", result.Error, slog.String("id", id.String()))
			return
		}
	}

	// (c) 刪除不在保留清單中的既有圖片
	// 客戶端送來的路徑已去掉 products/ 前綴，比對時兩邊都用裸路徑
	if retained, ok := collectValues(form, "existing_images"); ok {
		retainedSet := lo.SliceToMap(retained, func(path string) (string, struct{}) {
			return strings.TrimPrefix(path, imageNamespace), struct{}{}
		})
		for _, image := range existing {
			if _, keep := retainedSet[strings.TrimPrefix(image.Path, imageNamespace)]; keep {
				continue
			}
			// blob 刪除失敗只記錄不中斷，資料列照樣刪除
			if err := impl.blobs.Delete(c.Request.Context(), image.Path); err != nil {
				slog.Warn("Fail to delete image blob", slog.String("op", op), slog.String("path", image.Path), slog.Any("error", err))
			}
			if result := impl.db.Delete(&models.ProductImage{}, "id = ?", image.ID); result.Error != nil {
				respondInternal(c, op, "Error updating product", result.Error, slog.String("id", id.String()))
				return
			}
		}
	}

	updated := models.Product{ID: id}
	if result := impl.db.Preload("Images").First(&updated); result.Error != nil {
		respondInternal(c, op, "Error updating product", result.Error, slog.String("id", id.String()))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Product updated successfully",
		"product": impl.renderProduct(updated),
	})
}

// Delete a product
// (DELETE /api/products/{id})
func (impl *ServerImpl) DeleteProduct(c *gin.Context) {
	const op = "DeleteProduct"
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondNotFound(c)
		return
	}
	product := models.Product{ID: id}
	if result := impl.db.Preload("Images").First(&product); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			respondNotFound(c)
			return
		}
		respondInternal(c, op, "Error deleting product", result.Error, slog.String("id", id.String()))
		return
	}

	// blob 清理是 best-effort：失敗只記錄，資料列一定會刪掉
	for _, image := range product.Images {
		if err := impl.blobs.Delete(c.Request.Context(), image.Path); err != nil {
			slog.Warn("Fail to delete image blob", slog.String("op", op), slog.String("path", image.Path), slog.Any("error", err))
		}
	}
	if result := impl.db.Select(clause.Associations).Delete(&product); result.Error != nil {
		respondInternal(c, op, "Error deleting product", result.Error, slog.String("id", id.String()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}
