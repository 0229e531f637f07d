package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Operator struct {
	// Client 是 S3 客戶端。
	Client *s3.Client
	// Bucket 是 S3 存儲桶的名稱。
	Bucket string
	// PublicEndpoint 是 S3 存儲桶的公開 Endpoint。
	PublicEndpoint *url.URL
}

func NewOperator(client *s3.Client, bucket, publicBaseURL string) (*Operator, error) {
	const op = "NewOperator"
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &Operator{Client: client, Bucket: bucket, PublicEndpoint: publicEndpoint}, nil
}

// Upload 將檔案內容寫入 S3，並返回可公開存取的 URL
func (o *Operator) Upload(ctx context.Context, path, contentType string, content []byte) (string, error) {
	const op = "Upload"
	_, err := o.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.Bucket),
		Key:         aws.String(path),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	return o.URLFor(path), nil
}

// Delete 刪除 S3 上的檔案；對不存在的 key 同樣會回報成功
func (o *Operator) Delete(ctx context.Context, path string) error {
	const op = "Delete"
	_, err := o.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(o.Bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to delete file from S3, err=%w", op, err)
	}
	return nil
}

// URLFor 根據儲存的 key 推導公開 URL
func (o *Operator) URLFor(path string) string {
	uri := *o.PublicEndpoint
	uri.Path = path
	return uri.String()
}
