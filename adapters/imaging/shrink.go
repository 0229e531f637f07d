package imaging

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"image/jpeg"

	// 支援解碼上傳端允許的另外兩種圖片格式
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	// MaxUploadBytes 是伺服器端接受的單一圖片上限
	MaxUploadBytes = 2 << 20
	// MaxDimension 是壓縮後長邊的像素上限
	MaxDimension = 1200
	// JPEGQuality 是重新編碼時使用的品質係數
	JPEGQuality = 70
)

// File 代表一個待上傳的圖片檔案
type File struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

// Shrink 將超過 MaxUploadBytes 的圖片等比例縮小到長邊不超過 MaxDimension，
// 並以 JPEG 重新編碼；未超過上限的檔案原封不動返回。
// 縮放只收斂超出上限的那個維度，維持原始長寬比。
func Shrink(f File) (File, error) {
	const op = "Shrink"
	if int64(len(f.Data)) <= MaxUploadBytes {
		return f, nil
	}
	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("[%s] Fail to decode image %s, err=%w", op, f.Name, err)
	}
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > height {
		if width > MaxDimension {
			height = height * MaxDimension / width
			width = MaxDimension
		}
	} else {
		if height > MaxDimension {
			width = width * MaxDimension / height
			height = MaxDimension
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return File{}, fmt.Errorf("[%s] Fail to encode image %s, err=%w", op, f.Name, err)
	}
	return File{
		Name:    f.Name,
		Data:    buf.Bytes(),
		ModTime: time.Now(),
	}, nil
}
