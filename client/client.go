// Package client 是目錄服務的資料層：一個型別化的 API 客戶端，
// 加上鏡射伺服器狀態的 Store。UI 只跟 Store 互動。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Jamessuhh/PRAXXYS-Exam/adapters/imaging"
)

type Image struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Path      string    `json:"path"`
	URL       string    `json:"url"`
}

type Product struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Datetime    string    `json:"datetime"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Images      []Image   `json:"images"`
}

type Category struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ProductPage 對應伺服器分頁回應中的 products 區塊
type ProductPage struct {
	Data        []Product `json:"data"`
	Total       int64     `json:"total"`
	PerPage     int       `json:"per_page"`
	CurrentPage int       `json:"current_page"`
	LastPage    int       `json:"last_page"`
}

// ProductInput 是建立或更新商品的輸入
// ExistingImages 只在更新時使用，列出要保留的圖片路徑
type ProductInput struct {
	Name           string
	Category       string
	Description    string
	Datetime       string
	NewImages      []imaging.File
	ExistingImages []string
}

// APIError 代表伺服器返回的非 2xx 回應
type APIError struct {
	StatusCode int                 `json:"-"`
	Message    string              `json:"message"`
	Detail     string              `json:"error"`
	Fields     map[string][]string `json:"errors"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken 設定隨每個請求送出的 bearer token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient 替換底層的 http.Client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken 更新 bearer token，登入狀態改變時由呼叫端觸發
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) do(req *http.Request, want int, out any) error {
	const op = "do"
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("[%s] Fail to send request, err=%w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("[%s] Fail to read response, err=%w", op, err)
	}
	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		// 錯誤 body 解析失敗也沒關係，至少保留狀態碼
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("[%s] Fail to decode response, err=%w", op, err)
	}
	return nil
}

// Categories 取得全部分類
// (GET /api/categories)
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	const op = "Categories"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/categories", nil)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build request, err=%w", op, err)
	}
	var categories []Category
	if err := c.do(req, http.StatusOK, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ListProducts 取得一頁商品
// (GET /api/products)
func (c *Client) ListProducts(ctx context.Context, search, category string, page int) (*ProductPage, error) {
	const op = "ListProducts"
	query := url.Values{}
	if search != "" {
		query.Set("search", search)
	}
	if category != "" {
		query.Set("category", category)
	}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	endpoint := c.baseURL + "/api/products"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build request, err=%w", op, err)
	}
	var payload struct {
		Message  string      `json:"message"`
		Products ProductPage `json:"products"`
	}
	if err := c.do(req, http.StatusOK, &payload); err != nil {
		return nil, err
	}
	return &payload.Products, nil
}

// CreateProduct 建立商品
// (POST /api/products)
func (c *Client) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	const op = "CreateProduct"
	body, contentType, err := buildMultipart(input, false)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build form, err=%w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/products", body)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	var product Product
	if err := c.do(req, http.StatusCreated, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProduct 更新商品
// (POST /api/products/{id} with _method=PUT)
func (c *Client) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*Product, error) {
	const op = "UpdateProduct"
	body, contentType, err := buildMultipart(input, true)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build form, err=%w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/products/"+id.String(), body)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to build request, err=%w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	var payload struct {
		Message string  `json:"message"`
		Product Product `json:"product"`
	}
	if err := c.do(req, http.StatusOK, &payload); err != nil {
		return nil, err
	}
	return &payload.Product, nil
}

// DeleteProduct 刪除商品，返回伺服器的確認訊息
// (DELETE /api/products/{id})
func (c *Client) DeleteProduct(ctx context.Context, id uuid.UUID) (string, error) {
	const op = "DeleteProduct"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/products/"+id.String(), nil)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to build request, err=%w", op, err)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := c.do(req, http.StatusOK, &payload); err != nil {
		return "", err
	}
	return payload.Message, nil
}

// buildMultipart 組裝 multipart 請求內容
// 更新請求用 _method=PUT 隧道，並永遠帶上 existing_images 欄位，
// 讓空保留清單（刪掉全部既有圖片）和沒有提供清單是可區分的
func buildMultipart(input ProductInput, update bool) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if update {
		if err := writer.WriteField("_method", "PUT"); err != nil {
			return nil, "", err
		}
	}
	fields := map[string]string{
		"name":        input.Name,
		"category":    input.Category,
		"description": input.Description,
		"datetime":    input.Datetime,
	}
	for field, value := range fields {
		if value == "" && update {
			continue
		}
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", err
		}
	}
	if update {
		// 伺服器上的路徑帶有 products/ 前綴，送出前剝掉，配合伺服器的裸路徑比對
		if len(input.ExistingImages) == 0 {
			if err := writer.WriteField("existing_images[]", ""); err != nil {
				return nil, "", err
			}
		}
		for i, path := range input.ExistingImages {
			cleaned := strings.TrimPrefix(path, "products/")
			if err := writer.WriteField(fmt.Sprintf("existing_images[%d]", i), cleaned); err != nil {
				return nil, "", err
			}
		}
	}
	for i, file := range input.NewImages {
		part, err := writer.CreateFormFile(fmt.Sprintf("images[%d]", i), file.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
