package client_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/Jamessuhh/PRAXXYS-Exam/adapters/imaging"
	internalOIDC "github.com/Jamessuhh/PRAXXYS-Exam/adapters/oidc"
	"github.com/Jamessuhh/PRAXXYS-Exam/api"
	"github.com/Jamessuhh/PRAXXYS-Exam/client"
)

const storeTestToken = "valid-token"

var storeDBSeq int64

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *fakeBlobs) Upload(_ context.Context, path, _ string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = content
	return m.URLFor(path), nil
}

func (m *fakeBlobs) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *fakeBlobs) URLFor(path string) string {
	return "https://cdn.example.com/" + path
}

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, rawToken string) (*internalOIDC.Claims, error) {
	if rawToken != storeTestToken {
		return nil, errors.New("invalid token")
	}
	return &internalOIDC.Claims{Sub: "test-user"}, nil
}

// newBackend 啟動一個完整的 API 伺服器，只有 blob store 和 OIDC 是假的
func newBackend(t *testing.T) (*httptest.Server, *fakeBlobs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:storetest%d?mode=memory&cache=shared", atomic.AddInt64(&storeDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, api.Migrate(db))

	blobs := &fakeBlobs{objects: map[string][]byte{}}
	impl := api.NewServerWith(db, blobs, fakeVerifier{})
	router := gin.New()
	impl.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, blobs
}

func newTestStore(t *testing.T, server *httptest.Server) *client.Store {
	t.Helper()
	return client.NewStore(client.New(server.URL, client.WithToken(storeTestToken)))
}

func smallPNG(t *testing.T) imaging.File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return imaging.File{Name: "small.png", Data: buf.Bytes()}
}

// noisePNG 產生一張壓不下去的大圖，保證超過上傳上限
func noisePNG(t *testing.T, width, height int) imaging.File {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), imaging.MaxUploadBytes)
	return imaging.File{Name: "noise.png", Data: buf.Bytes()}
}

func TestStoreProductLifecycle(t *testing.T) {
	server, blobs := newBackend(t)
	store := newTestStore(t, server)
	ctx := context.Background()

	store.FetchCategories(ctx)
	assert.ElementsMatch(t, []string{"Sports", "Electronics", "Clothing", "Books", "Home & Garden"}, store.Categories())

	created, err := store.CreateProduct(ctx, client.ProductInput{
		Name:        "Ball",
		Category:    "Sports",
		Description: "Round",
		Datetime:    "2025-02-11T17:08:00Z",
		NewImages:   []imaging.File{smallPNG(t)},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ball", created.Name)
	assert.Equal(t, "2025-02-11 17:08:00", created.Datetime)
	require.Len(t, created.Images, 1)
	assert.Contains(t, created.Images[0].URL, "https://cdn.example.com/products/")

	// 新商品插在本地清單開頭
	products := store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, created.ID, products[0].ID)

	// 空保留清單代表刪掉全部既有圖片
	updated, err := store.UpdateProduct(ctx, created.ID, client.ProductInput{
		Name:           "Beach Ball",
		ExistingImages: []string{},
	})
	require.NoError(t, err)
	assert.Equal(t, "Beach Ball", updated.Name)
	assert.Empty(t, updated.Images)
	blobs.mu.Lock()
	assert.Empty(t, blobs.objects)
	blobs.mu.Unlock()

	// 本地清單中的同一筆被取代
	products = store.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Beach Ball", products[0].Name)

	message, err := store.DeleteProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Product deleted successfully", message)
	store.RemoveProduct(created.ID)
	assert.Empty(t, store.Products())
}

func TestStoreRetainsImagesAcrossUpdate(t *testing.T) {
	server, _ := newBackend(t)
	store := newTestStore(t, server)
	ctx := context.Background()

	created, err := store.CreateProduct(ctx, client.ProductInput{
		Name:        "Ball",
		Category:    "Sports",
		Description: "Round",
		Datetime:    "2025-02-11 17:08:00",
		NewImages:   []imaging.File{smallPNG(t), smallPNG(t)},
	})
	require.NoError(t, err)
	require.Len(t, created.Images, 2)

	// 保留第一張，丟掉第二張，再加一張新的
	updated, err := store.UpdateProduct(ctx, created.ID, client.ProductInput{
		ExistingImages: []string{created.Images[0].Path},
		NewImages:      []imaging.File{smallPNG(t)},
	})
	require.NoError(t, err)
	require.Len(t, updated.Images, 2)
	var paths []string
	for _, img := range updated.Images {
		paths = append(paths, img.Path)
	}
	assert.Contains(t, paths, created.Images[0].Path)
	assert.NotContains(t, paths, created.Images[1].Path)
}

func TestStoreSearchAndPagination(t *testing.T) {
	server, _ := newBackend(t)
	store := newTestStore(t, server)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		_, err := store.CreateProduct(ctx, client.ProductInput{
			Name:        fmt.Sprintf("Item %02d", i),
			Category:    "Sports",
			Description: "stock",
			Datetime:    "2025-02-11 17:08:00",
		})
		require.NoError(t, err)
	}

	store.FetchProducts(ctx)
	assert.Len(t, store.Products(), 10)
	assert.Equal(t, 2, store.TotalPages())

	store.SetPage(ctx, 2)
	assert.Equal(t, 2, store.CurrentPage())
	assert.Len(t, store.Products(), 2)

	// 改變篩選條件要回到第一頁
	store.SetSearchQuery(ctx, "Item 03")
	assert.Equal(t, 1, store.CurrentPage())
	require.Len(t, store.Products(), 1)
	assert.Equal(t, "Item 03", store.Products()[0].Name)

	store.SetSearchQuery(ctx, "")
	store.SetCategory(ctx, "Books")
	assert.Equal(t, 1, store.CurrentPage())
	assert.Empty(t, store.Products())
}

func TestStoreKeepsStateWhenFetchFails(t *testing.T) {
	server, _ := newBackend(t)
	store := newTestStore(t, server)
	ctx := context.Background()

	_, err := store.CreateProduct(ctx, client.ProductInput{
		Name:        "Ball",
		Category:    "Sports",
		Description: "Round",
		Datetime:    "2025-02-11 17:08:00",
	})
	require.NoError(t, err)
	store.FetchProducts(ctx)
	require.Len(t, store.Products(), 1)

	// 伺服器掛掉之後重新整理失敗，原有狀態不動
	server.Close()
	store.FetchProducts(ctx)
	assert.Len(t, store.Products(), 1)
	assert.False(t, store.Loading())
}

func TestStoreValidatesBeforeSending(t *testing.T) {
	// baseURL 指向沒有人聽的位址；驗證失敗時根本不會發出請求
	store := client.NewStore(client.New("http://127.0.0.1:1"))

	_, err := store.CreateProduct(context.Background(), client.ProductInput{Category: "Sports"})
	require.Error(t, err)

	var vErr *client.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "name")
	assert.Contains(t, vErr.Fields, "description")
	assert.Contains(t, vErr.Fields, "datetime")
	assert.NotContains(t, vErr.Fields, "category")
}

func TestStoreCompressesLargeImages(t *testing.T) {
	server, blobs := newBackend(t)
	store := newTestStore(t, server)
	ctx := context.Background()

	// 原圖超過伺服器的大小上限，上傳前會先被壓縮
	created, err := store.CreateProduct(ctx, client.ProductInput{
		Name:        "Poster",
		Category:    "Home & Garden",
		Description: "Wall art",
		Datetime:    "2025-02-11 17:08:00",
		NewImages:   []imaging.File{noisePNG(t, 2400, 1600)},
	})
	require.NoError(t, err)
	require.Len(t, created.Images, 1)

	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	content, ok := blobs.objects[created.Images[0].Path]
	require.True(t, ok)
	assert.LessOrEqual(t, len(content), imaging.MaxUploadBytes)
}
