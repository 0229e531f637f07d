package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Jamessuhh/PRAXXYS-Exam/adapters/imaging"
)

// ValidationError 是送出請求前的本地驗證結果，
// 和伺服器的 422 回應列出同樣的欄位
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d fields", len(e.Fields))
}

// Store 持有 UI 需要的商品與分類狀態
// 所有方法都可以在單一互動執行緒上呼叫；內部用鎖保護狀態
type Store struct {
	mu  sync.Mutex
	api *Client

	logger *slog.Logger

	products         []Product
	categories       []string
	searchQuery      string
	selectedCategory string
	currentPage      int
	totalPages       int
	loading          bool
}

type StoreOption func(*Store)

// WithLogger 替換預設的 logger
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(api *Client, opts ...StoreOption) *Store {
	s := &Store{
		api:         api,
		logger:      slog.Default(),
		currentPage: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
}

// FetchProducts 以目前的篩選條件重新載入商品
// 失敗時保留原有狀態，只記錄錯誤，不做重試
func (s *Store) FetchProducts(ctx context.Context) {
	s.setLoading(true)
	defer s.setLoading(false)

	s.mu.Lock()
	search, category, page := s.searchQuery, s.selectedCategory, s.currentPage
	s.mu.Unlock()

	result, err := s.api.ListProducts(ctx, search, category, page)
	if err != nil {
		s.logger.Error("Fail to fetch products", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.products = result.Data
	s.totalPages = result.LastPage
	s.mu.Unlock()
}

// FetchCategories 載入分類，狀態中只保留名稱
func (s *Store) FetchCategories(ctx context.Context) {
	categories, err := s.api.Categories(ctx)
	if err != nil {
		s.logger.Error("Fail to fetch categories", slog.Any("error", err))
		return
	}
	names := lo.Map(categories, func(category Category, _ int) string {
		return category.Name
	})
	s.mu.Lock()
	s.categories = names
	s.mu.Unlock()
}

// validateInput 在打 API 之前檢查必填欄位，和伺服器的規則一致
func validateInput(input ProductInput) *ValidationError {
	fields := map[string][]string{}
	if input.Name == "" {
		fields["name"] = append(fields["name"], "The name field is required.")
	}
	if input.Category == "" {
		fields["category"] = append(fields["category"], "The category field is required.")
	}
	if input.Description == "" {
		fields["description"] = append(fields["description"], "The description field is required.")
	}
	if input.Datetime == "" {
		fields["datetime"] = append(fields["datetime"], "The datetime field is required.")
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// shrinkImages 把超過上限的圖片先壓縮再上傳，小圖原樣通過
func shrinkImages(files []imaging.File) ([]imaging.File, error) {
	shrunk := make([]imaging.File, 0, len(files))
	for _, file := range files {
		out, err := imaging.Shrink(file)
		if err != nil {
			return nil, err
		}
		shrunk = append(shrunk, out)
	}
	return shrunk, nil
}

// CreateProduct 驗證並送出新商品，成功後插入本地清單的開頭
func (s *Store) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	if vErr := validateInput(input); vErr != nil {
		return nil, vErr
	}
	s.setLoading(true)
	defer s.setLoading(false)

	shrunk, err := shrinkImages(input.NewImages)
	if err != nil {
		return nil, err
	}
	input.NewImages = shrunk

	product, err := s.api.CreateProduct(ctx, input)
	if err != nil {
		s.logger.Error("Fail to create product", slog.Any("error", err))
		return nil, err
	}
	s.mu.Lock()
	s.products = append([]Product{*product}, s.products...)
	s.mu.Unlock()
	return product, nil
}

// UpdateProduct 送出部分更新，成功後以 id 取代本地清單中的同一筆
func (s *Store) UpdateProduct(ctx context.Context, id uuid.UUID, input ProductInput) (*Product, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	shrunk, err := shrinkImages(input.NewImages)
	if err != nil {
		return nil, err
	}
	input.NewImages = shrunk

	product, err := s.api.UpdateProduct(ctx, id, input)
	if err != nil {
		s.logger.Error("Fail to update product", slog.String("id", id.String()), slog.Any("error", err))
		return nil, err
	}
	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == product.ID {
			s.products[i] = *product
			break
		}
	}
	s.mu.Unlock()
	return product, nil
}

// DeleteProduct 刪除商品並返回伺服器的確認訊息
// 本地清單不在這裡修剪，由呼叫端決定
func (s *Store) DeleteProduct(ctx context.Context, id uuid.UUID) (string, error) {
	message, err := s.api.DeleteProduct(ctx, id)
	if err != nil {
		s.logger.Error("Fail to delete product", slog.String("id", id.String()), slog.Any("error", err))
		return "", err
	}
	return message, nil
}

// SetSearchQuery 更新搜尋字串，回到第一頁並重新載入
func (s *Store) SetSearchQuery(ctx context.Context, query string) {
	s.mu.Lock()
	s.searchQuery = query
	s.currentPage = 1
	s.mu.Unlock()
	s.FetchProducts(ctx)
}

// SetCategory 更新分類篩選，回到第一頁並重新載入
func (s *Store) SetCategory(ctx context.Context, category string) {
	s.mu.Lock()
	s.selectedCategory = category
	s.currentPage = 1
	s.mu.Unlock()
	s.FetchProducts(ctx)
}

// SetPage 切換頁數並重新載入
func (s *Store) SetPage(ctx context.Context, page int) {
	s.mu.Lock()
	s.currentPage = page
	s.mu.Unlock()
	s.FetchProducts(ctx)
}

func (s *Store) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := make([]Product, len(s.products))
	copy(products, s.products)
	return products
}

// RemoveProduct 把商品從本地清單拿掉，通常在 DeleteProduct 成功後呼叫
func (s *Store) RemoveProduct(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = lo.Reject(s.products, func(product Product, _ int) bool {
		return product.ID == id
	})
}

func (s *Store) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	categories := make([]string, len(s.categories))
	copy(categories, s.categories)
	return categories
}

func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searchQuery
}

func (s *Store) SelectedCategory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedCategory
}

func (s *Store) CurrentPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage
}

func (s *Store) TotalPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPages
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
