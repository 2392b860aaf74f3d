// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

// Package authrpc exposes the account and token flows over gRPC.
//
// Requests and responses are google.protobuf.Struct messages, so any gRPC
// client can call the service without generated stubs. Field names match
// the JSON names of the auth types (access_token, refresh_token, ...).
package authrpc

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tokenward/tokenward/internal/auth"
	"github.com/tokenward/tokenward/internal/grpcauth"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tokenward.auth.v1.AuthService"

// Method names.
const (
	MethodRegister             = "Register"
	MethodLogin                = "Login"
	MethodRefresh              = "Refresh"
	MethodLogout               = "Logout"
	MethodRequestPasswordReset = "RequestPasswordReset"
	MethodResetPassword        = "ResetPassword"
	MethodLogoutAll            = "LogoutAll"
	MethodWhoAmI               = "WhoAmI"
	MethodChangePassword       = "ChangePassword"
	MethodDeleteAccount        = "DeleteAccount"
)

// FullMethod returns the gRPC path of a method of the service.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PublicMethods are the methods callers reach before they hold an access
// token. Everything else requires a bearer token.
func PublicMethods() []string {
	return []string{
		FullMethod(MethodRegister),
		FullMethod(MethodLogin),
		FullMethod(MethodRefresh),
		FullMethod(MethodLogout),
		FullMethod(MethodRequestPasswordReset),
		FullMethod(MethodResetPassword),
	}
}

// AuthServer is the server API of the service.
type AuthServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestPasswordReset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetPassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LogoutAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WhoAmI(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangePassword(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAccount(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodRegister, AuthServer.Register),
		unary(MethodLogin, AuthServer.Login),
		unary(MethodRefresh, AuthServer.Refresh),
		unary(MethodLogout, AuthServer.Logout),
		unary(MethodRequestPasswordReset, AuthServer.RequestPasswordReset),
		unary(MethodResetPassword, AuthServer.ResetPassword),
		unary(MethodLogoutAll, AuthServer.LogoutAll),
		unary(MethodWhoAmI, AuthServer.WhoAmI),
		unary(MethodChangePassword, AuthServer.ChangePassword),
		unary(MethodDeleteAccount, AuthServer.DeleteAccount),
	},
	Metadata: "tokenward/auth/v1/auth.proto",
}

func unary(name string, call func(AuthServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RegisterAuthServer registers srv with the gRPC server.
func RegisterAuthServer(s grpc.ServiceRegistrar, srv AuthServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements AuthServer on top of an auth.AuthService.
type Server struct {
	svc    *auth.AuthService
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(svc *auth.AuthService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Register creates an account from username, email and password.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	user, err := s.svc.Register(ctx, field(req, "username"), field(req, "email"), field(req, "password"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodRegister, err)
	}
	return s.respond(ctx, MethodRegister, map[string]any{
		"user_id":  user.ID.String(),
		"username": user.Username,
		"email":    user.Email,
	})
}

// Login exchanges username and password for a token pair.
func (s *Server) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.svc.Login(ctx, field(req, "username"), field(req, "password"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodLogin, err)
	}
	return s.respond(ctx, MethodLogin, pairFields(pair))
}

// Refresh rotates refresh_token into a new pair.
func (s *Server) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	pair, err := s.svc.Refresh(ctx, field(req, "refresh_token"))
	if err != nil {
		return nil, s.toStatus(ctx, MethodRefresh, err)
	}
	return s.respond(ctx, MethodRefresh, pairFields(pair))
}

// Logout revokes refresh_token.
func (s *Server) Logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.Logout(ctx, field(req, "refresh_token")); err != nil {
		return nil, s.toStatus(ctx, MethodLogout, err)
	}
	return &structpb.Struct{}, nil
}

// RequestPasswordReset starts a reset for email. The response is the same
// whether or not the account exists.
func (s *Server) RequestPasswordReset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.RequestPasswordReset(ctx, field(req, "email")); err != nil {
		return nil, s.toStatus(ctx, MethodRequestPasswordReset, err)
	}
	return &structpb.Struct{}, nil
}

// ResetPassword consumes reset_token and sets new_password.
func (s *Server) ResetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.svc.ResetPassword(ctx, field(req, "reset_token"), field(req, "new_password")); err != nil {
		return nil, s.toStatus(ctx, MethodResetPassword, err)
	}
	return &structpb.Struct{}, nil
}

// LogoutAll revokes every refresh token of the caller.
func (s *Server) LogoutAll(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	claims, err := callerClaims(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.svc.LogoutAll(ctx, claims.UserID)
	if err != nil {
		return nil, s.toStatus(ctx, MethodLogoutAll, err)
	}
	return s.respond(ctx, MethodLogoutAll, map[string]any{"revoked": n})
}

// WhoAmI returns the claims of the caller's access token.
func (s *Server) WhoAmI(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	claims, err := callerClaims(ctx)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, MethodWhoAmI, map[string]any{
		"user_id":    claims.UserID.String(),
		"email":      claims.Email,
		"token_id":   claims.TokenID,
		"issued_at":  claims.IssuedAt.Unix(),
		"expires_at": claims.ExpiresAt.Unix(),
	})
}

// ChangePassword replaces the caller's password.
func (s *Server) ChangePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims, err := callerClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.ChangePassword(ctx, claims.UserID, field(req, "current_password"), field(req, "new_password")); err != nil {
		return nil, s.toStatus(ctx, MethodChangePassword, err)
	}
	return &structpb.Struct{}, nil
}

// DeleteAccount deletes the caller's account after checking password.
func (s *Server) DeleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	claims, err := callerClaims(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.svc.DeleteAccount(ctx, claims.UserID, field(req, "password")); err != nil {
		return nil, s.toStatus(ctx, MethodDeleteAccount, err)
	}
	return &structpb.Struct{}, nil
}

func (s *Server) respond(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, s.toStatus(ctx, method, err)
	}
	return out, nil
}

func field(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func pairFields(pair *auth.TokenPair) map[string]any {
	return map[string]any{
		"access_token":             pair.AccessToken,
		"refresh_token":            pair.RefreshToken,
		"access_token_expires_in":  pair.AccessTokenExpiresIn,
		"refresh_token_expires_in": pair.RefreshTokenExpiresIn,
	}
}

func callerClaims(ctx context.Context) (*auth.AccessClaims, error) {
	claims, ok := grpcauth.ClaimsFromContext(ctx)
	if !ok || claims.UserID == (ulid.ULID{}) {
		return nil, errUnauthenticated
	}
	return claims, nil
}

var _ AuthServer = (*Server)(nil)
