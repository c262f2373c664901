package main

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sosmed"

// tracing opens a server span per request on the global tracer provider,
// which is a no-op until an SDK is installed.
func tracing() gin.HandlerFunc {
	tracer := otel.Tracer(tracerName)
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+routeOf(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", routeOf(c)),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if user, ok := lookupCurrentUser(c); ok {
			span.SetAttributes(attribute.Int64("user.id", int64(user.ID)))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, "server error")
			for _, e := range c.Errors {
				span.RecordError(e.Err)
			}
		}
	}
}
