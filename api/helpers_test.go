package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	internalOIDC "github.com/Jamessuhh/PRAXXYS-Exam/adapters/oidc"
	"github.com/Jamessuhh/PRAXXYS-Exam/models"
)

const testToken = "valid-token"

var dbSeq int64

// memBlobStore 是測試用的記憶體 blob store
// failUploadAfter 控制第幾次上傳開始失敗，-1 表示永不失敗
type memBlobStore struct {
	mu              sync.Mutex
	objects         map[string][]byte
	uploads         int
	failUploadAfter int
	failDelete      bool
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}, failUploadAfter: -1}
}

func (m *memBlobStore) Upload(_ context.Context, path, _ string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUploadAfter >= 0 && m.uploads >= m.failUploadAfter {
		return "", errors.New("blob store unavailable")
	}
	m.uploads++
	m.objects[path] = content
	return m.URLFor(path), nil
}

func (m *memBlobStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return errors.New("blob store unavailable")
	}
	delete(m.objects, path)
	return nil
}

func (m *memBlobStore) URLFor(path string) string {
	return "https://cdn.example.com/" + path
}

func (m *memBlobStore) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok
}

func (m *memBlobStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// staticVerifier 只接受固定的測試 token
type staticVerifier struct{}

func (staticVerifier) Verify(_ context.Context, rawToken string) (*internalOIDC.Claims, error) {
	if rawToken != testToken {
		return nil, errors.New("invalid token")
	}
	return &internalOIDC.Claims{Sub: "test-user"}, nil
}

func newTestServer(t *testing.T) (*ServerImpl, *gin.Engine, *memBlobStore, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:apitest%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	blobs := newMemBlobStore()
	impl := NewServerWith(db, blobs, staticVerifier{})
	router := gin.New()
	impl.RegisterRoutes(router)
	return impl, router, blobs, db
}

// multipartBody 組裝測試請求的 multipart 內容
func multipartBody(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}
	for field, content := range files {
		part, err := writer.CreateFormFile(field, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func doRequest(router *gin.Engine, method, target, contentType string, body *bytes.Buffer, authenticated bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authenticated {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

// pngBytes 產生一張合法的小 PNG
func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func seedProduct(t *testing.T, db *gorm.DB, name, category, description string) models.Product {
	t.Helper()
	product := models.Product{
		Name:        name,
		Category:    category,
		Description: description,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

func seedImage(t *testing.T, db *gorm.DB, blobs *memBlobStore, product models.Product, path string) models.ProductImage {
	t.Helper()
	record := models.ProductImage{ProductID: product.ID, Path: path}
	require.NoError(t, db.Create(&record).Error)
	blobs.mu.Lock()
	blobs.objects[path] = []byte("blob")
	blobs.mu.Unlock()
	return record
}
