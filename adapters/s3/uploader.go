package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrUnsupportedImageType 表示上傳的內容不在允許的圖片類型內
var ErrUnsupportedImageType = errors.New("unsupported image type")

// secureMIMETypesExtension 定義了允許上傳的安全圖片類型及其對應的副檔名
var secureMIMETypesExtension = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/bmp":  "bmp",
	"image/tiff": "tiff",
	"image/webp": "webp",
}

// CheckSecureImageAndGetExtension 檢查給定的 MIME 類型是否為允許的圖片類型，並返回對應的副檔名
func CheckSecureImageAndGetExtension(mimeType string) (bool, string) {
	ext, ok := secureMIMETypesExtension[mimeType]
	return ok, ext
}

// ObjectPutter 是上傳物件需要的最小 S3 介面，*s3.Client 滿足它
type ObjectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader 負責把圖片與文件上傳到物件儲存並產生公開 URL。
// 物件以擁有者分組，key 由系統產生，呼叫端不能指定路徑。
type Uploader struct {
	client         ObjectPutter
	bucket         string
	publicEndpoint *url.URL
}

// NewUploader 建立 Uploader
func NewUploader(client ObjectPutter, bucket, publicBaseURL string) (*Uploader, error) {
	const op = "NewUploader"
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket cannot be empty")
	}
	publicEndpoint, err := url.Parse(publicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public base URL, err=%w", op, err)
	}
	return &Uploader{
		client:         client,
		bucket:         bucket,
		publicEndpoint: publicEndpoint,
	}, nil
}

// UploadImage 上傳一張拍賣用圖片，回傳公開 URL。
// 只接受允許清單內的圖片類型。
func (u *Uploader) UploadImage(ctx context.Context, ownerID uuid.UUID, contentType string, content []byte) (string, error) {
	ok, ext := CheckSecureImageAndGetExtension(contentType)
	if !ok {
		return "", ErrUnsupportedImageType
	}
	key := path.Join("images", ownerID.String(), fmt.Sprintf("%s.%s", uuid.New(), ext))
	return u.put(ctx, key, contentType, content)
}

// UploadDocument 上傳一份身分驗證文件，回傳公開 URL
func (u *Uploader) UploadDocument(ctx context.Context, ownerID uuid.UUID, contentType string, content []byte) (string, error) {
	ok, ext := CheckSecureImageAndGetExtension(contentType)
	if !ok {
		return "", ErrUnsupportedImageType
	}
	key := path.Join("verifications", ownerID.String(), fmt.Sprintf("%s.%s", uuid.New(), ext))
	return u.put(ctx, key, contentType, content)
}

func (u *Uploader) put(ctx context.Context, key, contentType string, content []byte) (string, error) {
	const op = "Uploader.put"
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to upload file to S3, err=%w", op, err)
	}
	uri := *u.publicEndpoint
	uri.Path = path.Join(uri.Path, key)
	return uri.String(), nil
}
