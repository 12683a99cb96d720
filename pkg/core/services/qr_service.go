package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
	"github.com/wadjakorntonsri/nexlink/pkg/ports"
)

// QRSize is the PNG edge length in pixels.
const QRSize = 256

type QRService struct {
	links ports.LinkService
}

func NewQRService(links ports.LinkService) *QRService {
	return &QRService{links: links}
}

// PNG renders the fully qualified short URL of an owned link. It returns the
// image and the URL it encodes.
func (s *QRService) PNG(ctx context.Context, code, owner, baseURL string) ([]byte, string, error) {
	link, err := s.links.GetOwnedLink(ctx, code, owner)
	if err != nil {
		return nil, "", err
	}

	fullURL := strings.TrimRight(baseURL, "/") + "/" + link.ShortCode
	png, err := qrcode.Encode(fullURL, qrcode.Medium, QRSize)
	if err != nil {
		return nil, "", errors.Wrap(err, "encode qr code")
	}
	return png, fullURL, nil
}

var _ ports.QRService = (*QRService)(nil)
