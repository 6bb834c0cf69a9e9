package http

import (
	"github.com/gin-gonic/gin"

	apierrors "github.com/Apurer/catalog-gateway/internal/shared/errors"
)

// Route describes one registered endpoint.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc gin.HandlerFunc
}

// Routes lists every product and health endpoint.
func Routes(products *ProductAPI, health *HealthAPI) []Route {
	return []Route{
		{"ListProducts", "GET", "/v1/products", products.ListProducts},
		{"CreateProduct", "POST", "/v1/products", products.CreateProduct},
		{"GetProduct", "GET", "/v1/products/:id", products.GetProduct},
		{"UpdateProduct", "PUT", "/v1/products/:id", products.UpdateProduct},
		{"DeleteProduct", "DELETE", "/v1/products/:id", products.DeleteProduct},
		{"ListProductsV2", "GET", "/v2/products", products.ListProductsV2},
		{"GetProductV2", "GET", "/v2/products/:id", products.GetProductV2},
		{"Health", "GET", "/health", health.Health},
		{"HealthDetailed", "GET", "/health/detailed", health.Detailed},
	}
}

// NewRouter builds the gin engine. Middleware runs after recovery and request ids.
func NewRouter(routes []Route, middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID())
	router.Use(middleware...)
	for _, route := range routes {
		router.Handle(route.Method, route.Pattern, route.HandlerFunc)
	}
	responder := apierrors.NewResponder(apierrors.WithRequestID(RequestIDFrom))
	router.NoRoute(func(c *gin.Context) {
		responder.Respond(c, apierrors.ErrNotFound.
			WithDetail("Endpoint not found").
			WithExtension("method", c.Request.Method))
	})
	return router
}
