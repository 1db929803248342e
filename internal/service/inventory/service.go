package inventory

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kapu/trendscope-go/internal/constants"
	"github.com/kapu/trendscope-go/internal/domain"
	"github.com/kapu/trendscope-go/internal/util"
	"github.com/kapu/trendscope-go/pkg/errors"
)

// Poster is the transport used to deliver inventory records.
type Poster interface {
	Post(ctx context.Context, setting, url string, body any) ([]byte, error)
}

// Service parses uploaded inventory files and forwards them to the products
// endpoint. Failures here never touch the analysis path.
type Service struct {
	poster   Poster
	baseURL  string
	maxBytes int64
	logger   *zap.Logger
}

func NewService(poster Poster, baseURL string, maxBytes int64, logger *zap.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = constants.UploadLimits.MaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		poster:   poster,
		baseURL:  baseURL,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// ParseFile reads an inventory document. When the first key of the top-level
// object holds an object, that key is the product name and the object holds the
// fields; otherwise the fields sit at the top level and the name is empty.
func (s *Service) ParseFile(fileName string, data []byte) (*domain.ParsedFile, error) {
	if int64(len(data)) > s.maxBytes {
		return nil, errors.NewUploadError(
			fmt.Sprintf("file too large (max %d bytes)", s.maxBytes),
			http.StatusRequestEntityTooLarge, fileName, nil)
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.NewUploadError("invalid JSON format: "+err.Error(), http.StatusBadRequest, fileName, err)
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, errors.NewUploadError("invalid JSON format: must contain product inventory data", http.StatusBadRequest, fileName, nil)
	}

	name := ""
	fields := doc
	doc.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() {
			name = key.String()
			fields = value
		}
		return false // 첫 번째 키만 본다
	})

	parsed := &domain.ParsedFile{
		ProductName:        name,
		BeginningInventory: number(fields.Get("Beginning Inventory")),
		COGS:               number(fields.Get("COGS")),
		EndingInventory:    number(fields.Get("Ending Inventory")),
		Sales:              number(fields.Get("Sales")),
		TargetTurnover:     number(fields.Get("Target Turnover")),
		Period:             fields.Get("period").String(),
		ID:                 fields.Get("id").String(),
	}
	if parsed.TargetTurnover == 0 {
		parsed.TargetTurnover = constants.UploadLimits.DefaultTargetTurnover
	}
	if parsed.Period == "" {
		parsed.Period = constants.UploadLimits.DefaultPeriod
	}
	return parsed, nil
}

func number(r gjson.Result) float64 {
	if r.Type != gjson.Number {
		return 0
	}
	return r.Float()
}

// Record converts a parsed file into the flat body the products endpoint takes.
func Record(parsed *domain.ParsedFile, productName string) domain.ProductInventory {
	id := parsed.ID
	if id == "" {
		id = fmt.Sprintf("INV%s-%s", parsed.Period, util.Slugify(productName))
	}
	return domain.ProductInventory{
		BeginningInventory: parsed.BeginningInventory,
		COGS:               parsed.COGS,
		EndingInventory:    parsed.EndingInventory,
		Sales:              parsed.Sales,
		TargetTurnover:     parsed.TargetTurnover,
		ID:                 id,
		Period:             parsed.Period,
	}
}

// Upload parses data and posts it to {PRODUCTS_API_URL}/{slug}. The product name
// comes from the file; formName is used only when the file has none.
func (s *Service) Upload(ctx context.Context, fileName string, data []byte, formName string) (*domain.ProductUploadResponse, error) {
	parsed, err := s.ParseFile(fileName, data)
	if err != nil {
		return nil, err
	}

	productName := parsed.ProductName
	if productName == "" {
		productName = formName
	}
	if productName == "" {
		return nil, errors.NewUploadError("product name is required", http.StatusBadRequest, fileName, nil)
	}

	if s.baseURL == "" {
		return nil, errors.NewConfigError("PRODUCTS_API_URL is not configured", "PRODUCTS_API_URL")
	}

	slug := util.Slugify(productName)
	record := Record(parsed, productName)
	url := s.baseURL + "/" + slug

	s.logger.Info("Uploading product inventory",
		zap.String("file", fileName),
		zap.String("product", productName),
		zap.String("id", record.ID),
	)

	body, err := s.poster.Post(ctx, "PRODUCTS_API_URL", url, record)
	if err != nil {
		var apiErr *errors.APIError
		if stderrors.As(err, &apiErr) {
			return nil, errors.NewUploadError("failed to upload product data", apiErr.StatusCode, fileName, err)
		}
		return nil, err
	}

	var resp domain.ProductUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.NewUploadError("invalid response from products endpoint", http.StatusBadGateway, fileName, err)
	}
	return &resp, nil
}
