// Package http exposes the product aggregation service over gin.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Apurer/catalog-gateway/internal/domains/products/adapters/http/mapper"
	"github.com/Apurer/catalog-gateway/internal/domains/products/ports"
	apierrors "github.com/Apurer/catalog-gateway/internal/shared/errors"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 255
	maxBodyBytes         = 10 << 20

	operationCreate       = "create-product"
	operationUpdatePrefix = "update-product-"
)

// DuplicateRecorder observes write requests rejected as replays.
type DuplicateRecorder interface {
	ObserveDuplicate(operation string)
}

// ProductAPI wires HTTP transport with the product aggregation service.
type ProductAPI struct {
	service     ports.Service
	idempotency ports.IdempotencyStore
	responder   *apierrors.ChainedResponder
	logger      *slog.Logger
	duplicates  DuplicateRecorder
}

type Option func(*ProductAPI)

func WithLogger(logger *slog.Logger) Option {
	return func(api *ProductAPI) {
		if logger != nil {
			api.logger = logger
		}
	}
}

func WithDuplicateRecorder(recorder DuplicateRecorder) Option {
	return func(api *ProductAPI) {
		api.duplicates = recorder
	}
}

// NewProductAPI creates a ProductAPI backed by the provided service and idempotency store.
func NewProductAPI(service ports.Service, idempotency ports.IdempotencyStore, opts ...Option) *ProductAPI {
	api := &ProductAPI{
		service:     service,
		idempotency: idempotency,
		responder:   NewResponder(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(api)
		}
	}
	return api
}

// Get /v1/products
func (api *ProductAPI) ListProducts(c *gin.Context) {
	products, err := api.service.ListAll(c.Request.Context())
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapper.FromAggregatedList(products))
}

// Get /v1/products/:id
func (api *ProductAPI) GetProduct(c *gin.Context) {
	id := c.Param("id")
	product, err := api.service.GetByID(c.Request.Context(), id)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	if product == nil {
		api.responder.NotFound(c, "product", id)
		return
	}
	c.JSON(http.StatusOK, mapper.FromAggregated(*product))
}

// Post /v1/products
// Requires an Idempotency-Key header; replays with the same body are rejected with 409.
func (api *ProductAPI) CreateProduct(c *gin.Context) {
	key, ok := api.idempotencyKey(c)
	if !ok {
		return
	}
	raw, req, ok := api.bindProduct(c)
	if !ok {
		return
	}
	if api.rejectDuplicate(c, key, operationCreate, raw) {
		return
	}
	created, err := api.service.Create(c.Request.Context(), mapper.ToInput(req), key)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mapper.FromProduct(created))
}

// Put /v1/products/:id
func (api *ProductAPI) UpdateProduct(c *gin.Context) {
	id := c.Param("id")
	key, ok := api.idempotencyKey(c)
	if !ok {
		return
	}
	raw, req, ok := api.bindProduct(c)
	if !ok {
		return
	}
	if api.rejectDuplicate(c, key, operationUpdatePrefix+id, raw) {
		return
	}
	updated, err := api.service.Update(c.Request.Context(), id, mapper.ToInput(req), key)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapper.FromProduct(updated))
}

// Delete /v1/products/:id
func (api *ProductAPI) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	deleted, err := api.service.Delete(c.Request.Context(), id)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	if !deleted {
		api.responder.NotFound(c, "product", id)
		return
	}
	c.Status(http.StatusNoContent)
}

// Get /v2/products
func (api *ProductAPI) ListProductsV2(c *gin.Context) {
	products, err := api.service.ListAll(c.Request.Context())
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, mapper.ToV2List(products))
}

// Get /v2/products/:id
func (api *ProductAPI) GetProductV2(c *gin.Context) {
	id := c.Param("id")
	product, err := api.service.GetByID(c.Request.Context(), id)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	if product == nil {
		api.responder.NotFound(c, "product", id)
		return
	}
	c.JSON(http.StatusOK, mapper.ToV2Detail(*product))
}

func (api *ProductAPI) idempotencyKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	switch {
	case key == "":
		api.responder.BadRequest(c, "Idempotency-Key header required")
		return "", false
	case len(key) > maxIdempotencyKeyLen:
		api.responder.BadRequest(c, "Idempotency-Key header must be at most 255 characters")
		return "", false
	}
	return key, true
}

func (api *ProductAPI) bindProduct(c *gin.Context) (json.RawMessage, mapper.ProductRequest, bool) {
	var req mapper.ProductRequest
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		api.responder.BadRequest(c, err.Error())
		return nil, req, false
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			api.responder.ValidationFailed(c, map[string]string{typeErr.Field: "invalid type"})
		case errors.As(err, &syntaxErr), len(raw) == 0:
			api.responder.BadRequest(c, "request body must be a JSON object")
		default:
			api.responder.BadRequest(c, err.Error())
		}
		return nil, req, false
	}
	return raw, req, true
}

func (api *ProductAPI) rejectDuplicate(c *gin.Context, key, operation string, body json.RawMessage) bool {
	duplicate, err := api.idempotency.CheckAndStore(c.Request.Context(), key, operation, body)
	if err != nil {
		api.responder.RespondError(c, err)
		return true
	}
	if !duplicate {
		return false
	}
	api.logger.InfoContext(c.Request.Context(), "duplicate write rejected",
		slog.String("operation", operation),
		slog.String("request_id", RequestIDFrom(c)),
	)
	if api.duplicates != nil {
		label := operation
		if strings.HasPrefix(label, operationUpdatePrefix) {
			label = strings.TrimSuffix(operationUpdatePrefix, "-")
		}
		api.duplicates.ObserveDuplicate(label)
	}
	api.responder.Respond(c, apierrors.ErrDuplicateRequest)
	return true
}
