package api

import (
	"context"
	"fmt"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	internalOIDC "github.com/Jamessuhh/PRAXXYS-Exam/adapters/oidc"
	internalS3 "github.com/Jamessuhh/PRAXXYS-Exam/adapters/s3"
	"github.com/Jamessuhh/PRAXXYS-Exam/models"
)

// BlobStore 是圖片儲存後端的最小介面
// 生產環境由 adapters/s3 實作，測試時可以用記憶體內的假實作替換
type BlobStore interface {
	Upload(ctx context.Context, path, contentType string, content []byte) (string, error)
	Delete(ctx context.Context, path string) error
	URLFor(path string) string
}

// TokenVerifier 驗證外部身份提供者簽發的 bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*internalOIDC.Claims, error)
}

type ServerImpl struct {
	db          *gorm.DB
	blobs       BlobStore
	verifier    TokenVerifier
	htmlChecker *bluemonday.Policy

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化OIDC驗證器
	verifier, err := internalOIDC.NewVerifier(context.Background(), config.OIDC.IssuerURL, config.OIDC.ClientID)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to initial OIDC verifier, err=%w", op, err)
	}

	// 初始化S3客戶端
	s3Cfg, err := awsCfg.LoadDefaultConfig(
		context.Background(),
		awsCfg.WithBaseEndpoint(config.S3.Endpoint),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(config.S3.AccessKeyID, config.S3.SecretAccessKey, "")),
		awsCfg.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to load AWS config, err=%w", op, err)
	}
	operator, err := internalS3.NewOperator(s3.NewFromConfig(s3Cfg), config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}

	impl := NewServerWith(db, operator, verifier)
	impl.config = config
	return impl, nil
}

// NewServerWith 以外部注入的依賴組裝伺服器，測試時直接使用
func NewServerWith(db *gorm.DB, blobs BlobStore, verifier TokenVerifier) *ServerImpl {
	return &ServerImpl{
		db:          db,
		blobs:       blobs,
		verifier:    verifier,
		htmlChecker: bluemonday.UGCPolicy(),
	}
}

// Migrate 建立資料表並在分類表為空時寫入 seed 資料
func Migrate(db *gorm.DB) error {
	const op = "Migrate"
	if err := db.AutoMigrate(&models.Category{}, &models.Product{}, &models.ProductImage{}); err != nil {
		return fmt.Errorf("[%s] Fail to auto migrate, err=%w", op, err)
	}
	var count int64
	if result := db.Model(&models.Category{}).Count(&count); result.Error != nil {
		return fmt.Errorf("[%s] Fail to count categories, err=%w", op, result.Error)
	}
	if count > 0 {
		return nil
	}
	for _, name := range []string{"Sports", "Electronics", "Clothing", "Books", "Home & Garden"} {
		if result := db.Create(&models.Category{Name: name}); result.Error != nil {
			return fmt.Errorf("[%s] Fail to seed category %s, err=%w", op, name, result.Error)
		}
	}
	return nil
}

// RegisterRoutes 將所有路由掛到 router 上
// 分類列表是公開的，商品路由一律要求通過驗證
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api")
	group.GET("/categories", impl.GetCategories)

	products := group.Group("/products", impl.AuthRequired())
	products.GET("", impl.GetProducts)
	products.POST("", impl.PostProduct)
	products.PUT("/:id", impl.UpdateProduct)
	products.PATCH("/:id", impl.UpdateProduct)
	// 前端用 multipart POST 加上 _method=PUT 模擬 PUT
	products.POST("/:id", impl.TunnelUpdateProduct)
	products.DELETE("/:id", impl.DeleteProduct)
}
