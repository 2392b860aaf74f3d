// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package grpcauth authenticates gRPC calls with bearer access tokens.
//
// The interceptors read the "authorization: Bearer <token>" metadata entry,
// validate the token through an auth.TokenValidator and place the resulting
// claims in the request context. Every failure is reported to the caller as
// the same codes.Unauthenticated status.
package grpcauth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/tokenward/tokenward/internal/auth"
)

// MetadataKey is the metadata entry carrying the access token.
const MetadataKey = "authorization"

const bearerPrefix = "bearer "

// Decision label values.
const (
	DecisionAllowed  = "allowed"
	DecisionPublic   = "public"
	DecisionMissing  = "missing"
	DecisionRejected = "rejected"
)

// Decisions counts interceptor outcomes.
var Decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_grpc_auth_decisions_total",
		Help: "Total number of gRPC authentication decisions by outcome",
	},
	[]string{"decision"},
)

// errUnauthenticated is returned for every rejected call.
var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

type claimsKey struct{}

// ClaimsFromContext returns the claims of the authenticated caller.
func ClaimsFromContext(ctx context.Context) (*auth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.AccessClaims)
	return claims, ok && claims != nil
}

// ContextWithClaims returns ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *auth.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithPublicMethods lets matching full methods through without a token.
// Patterns are globs with '/' as separator, so "/grpc.health.v1.Health/*"
// covers every health method and a plain name matches only itself.
func WithPublicMethods(patterns ...string) Option {
	return func(i *Interceptor) {
		i.publicPatterns = append(i.publicPatterns, patterns...)
	}
}

// WithLogger sets the logger for rejected calls.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// Interceptor holds the unary and stream server interceptors.
type Interceptor struct {
	validator      auth.TokenValidator
	publicPatterns []string
	public         []glob.Glob
	logger         *slog.Logger
}

// New creates an Interceptor delegating validation to validator.
func New(validator auth.TokenValidator, opts ...Option) (*Interceptor, error) {
	if validator == nil {
		return nil, oops.Errorf("token validator is required")
	}
	i := &Interceptor{
		validator: validator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	for _, pattern := range i.publicPatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, oops.Code("INVALID_PUBLIC_METHOD").With("pattern", pattern).Wrap(err)
		}
		i.public = append(i.public, g)
	}
	return i, nil
}

// Unary returns the unary server interceptor.
func (i *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// Stream returns the stream server interceptor.
func (i *Interceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

func (i *Interceptor) isPublic(method string) bool {
	for _, g := range i.public {
		if g.Match(method) {
			return true
		}
	}
	return false
}

func (i *Interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if i.isPublic(method) {
		Decisions.WithLabelValues(DecisionPublic).Inc()
		return ctx, nil
	}

	token, ok := bearerToken(ctx)
	if !ok {
		Decisions.WithLabelValues(DecisionMissing).Inc()
		i.logger.DebugContext(ctx, "rejected call without bearer token", "method", method)
		return nil, errUnauthenticated
	}

	claims, err := i.validator.ValidateAccessToken(ctx, token)
	if err != nil {
		Decisions.WithLabelValues(DecisionRejected).Inc()
		if auth.KindOf(err) == auth.KindInternal {
			i.logger.ErrorContext(ctx, "access token validation failed", "method", method, "error", err)
		} else {
			i.logger.DebugContext(ctx, "rejected call with invalid token", "method", method)
		}
		return nil, errUnauthenticated
	}

	Decisions.WithLabelValues(DecisionAllowed).Inc()
	return ContextWithClaims(ctx, claims), nil
}

// bearerToken extracts the token from the first authorization entry.
func bearerToken(ctx context.Context) (string, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", false
	}
	values := md.Get(MetadataKey)
	if len(values) == 0 {
		return "", false
	}
	v := values[0]
	if len(v) < len(bearerPrefix) || !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(v[len(bearerPrefix):])
	return token, token != ""
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context {
	return s.ctx
}
