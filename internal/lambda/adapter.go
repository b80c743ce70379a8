// Package lambda runs the HTTP router behind API Gateway HTTP APIs.
package lambda

import (
	"context"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/jtoloui/motorway-takehome-backend/internal/middleware"
)

// Adapter serves API Gateway v2 (payload format 2.0) events with the gin
// router, so the long-running server and Lambda share every route and
// middleware.
type Adapter struct {
	proxy *ginadapter.GinLambdaV2
}

func NewAdapter(router *gin.Engine) *Adapter {
	return &Adapter{proxy: ginadapter.NewV2(router)}
}

// Handle is the Lambda handler function. The gateway's request id is used as
// X-Request-ID unless the caller sent one.
func (a *Adapter) Handle(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if id := event.RequestContext.RequestID; id != "" && !hasHeader(event.Headers, middleware.RequestIDHeader) {
		headers := make(map[string]string, len(event.Headers)+1)
		for k, v := range event.Headers {
			headers[k] = v
		}
		headers[strings.ToLower(middleware.RequestIDHeader)] = id
		event.Headers = headers
	}
	return a.proxy.ProxyWithContext(ctx, event)
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
