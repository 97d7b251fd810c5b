package rest

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/robalyx/guildstats/internal/rest/handler"
)

// LambdaHandlerFunc handles API Gateway HTTP API (payload v2) events.
type LambdaHandlerFunc func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error)

// LambdaHandler adapts the stats handler to API Gateway HTTP API events.
func LambdaHandler(statsHandler *handler.StatsHandler) LambdaHandlerFunc {
	return func(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		reply := statsHandler.Handle(ctx, event.RequestContext.HTTP.Method)

		headers := make(map[string]string, len(reply.Header))
		for k := range reply.Header {
			headers[k] = reply.Header.Get(k)
		}

		return events.APIGatewayV2HTTPResponse{
			StatusCode: reply.Status,
			Headers:    headers,
			Body:       string(reply.Body),
		}, nil
	}
}
