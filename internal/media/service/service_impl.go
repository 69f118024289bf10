package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/media/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultMaxWidth = 1600

type format struct {
	ext    string
	encode imaging.Format
	// resizable formats can be decoded and re-encoded by imaging.
	resizable bool
}

var formats = map[string]format{
	"image/jpeg": {ext: "jpg", encode: imaging.JPEG, resizable: true},
	"image/png":  {ext: "png", encode: imaging.PNG, resizable: true},
	"image/gif":  {ext: "gif", encode: imaging.GIF, resizable: true},
	"image/webp": {ext: "webp"},
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Clock  clock.Clock
	Config config.Config
	Store  domain.Store
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	store    domain.Store
	maxWidth int
}

func New(p Params) domain.Service {
	return NewService(p)
}

func NewService(p Params) *Service {
	maxWidth := p.Config.Storage.MaxWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	return &Service{
		log:      p.Log.Named("media.service"),
		clock:    p.Clock,
		store:    p.Store,
		maxWidth: maxWidth,
	}
}

func (s *Service) UploadProductImage(ctx context.Context, req domain.UploadRequest) (*domain.UploadResult, error) {
	if len(req.Data) == 0 {
		return nil, domain.ErrEmptyFile
	}
	if len(req.Data) > domain.MaxUploadBytes {
		return nil, domain.ErrFileTooLarge
	}

	contentType := sniff(req.Data)
	f, ok := formats[contentType]
	if !ok {
		return nil, domain.ErrUnsupportedType
	}

	body := req.Data
	result := &domain.UploadResult{ContentType: contentType}
	if f.resizable {
		img, err := imaging.Decode(bytes.NewReader(req.Data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, domain.ErrUnsupportedType
		}
		bounds := img.Bounds()
		result.Width, result.Height = bounds.Dx(), bounds.Dy()
		if result.Width > s.maxWidth {
			resized, err := encode(imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos), f.encode)
			if err != nil {
				return nil, fmt.Errorf("resize image: %w", err)
			}
			body = resized
			result.Width = s.maxWidth
			result.Height = resizedHeight(bounds, s.maxWidth)
			result.Resized = true
		}
	}

	key := fmt.Sprintf("products/%d-%s.%s",
		s.clock.Now().UnixMilli(),
		strings.ToLower(ulid.Make().String()),
		f.ext,
	)
	if err := s.store.Put(ctx, key, contentType, body); err != nil {
		s.log.Warn("store image failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	result.Key = key
	result.URL = s.store.URL(key)
	result.Size = len(body)
	s.log.Info("product image uploaded",
		zap.String("key", key),
		zap.String("filename", req.Filename),
		zap.Int("size", result.Size),
		zap.Bool("resized", result.Resized),
	)
	return result, nil
}

// sniff reports the content type from the leading bytes; the client's
// filename and header are not trusted.
func sniff(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

func encode(img image.Image, f imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, f, imaging.JPEGQuality(85)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func resizedHeight(b image.Rectangle, width int) int {
	if b.Dx() == 0 {
		return 0
	}
	h := int(float64(b.Dy())*float64(width)/float64(b.Dx()) + 0.5)
	if h < 1 {
		h = 1
	}
	return h
}
