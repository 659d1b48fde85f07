package server

import (
	"github.com/turfbook/turf-client/guard"
	"github.com/turfbook/turf-client/users"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHome+"{$}", ChainMiddleware(s.HomeHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteUnauthorized, ChainMiddleware(s.UnauthorizedHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.PageMiddleware()...))

	// AUTH FORMS
	s.RegisterRouteHandler("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.PageMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteRegister, ChainMiddleware(s.RegisterPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteRegister, ChainMiddleware(s.RegisterSubmissionHandler(), s.PageMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteVerifyOtp, ChainMiddleware(s.VerifyOtpPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteVerifyOtp, ChainMiddleware(s.VerifyOtpSubmissionHandler(), s.PageMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteForgotPassword, ChainMiddleware(s.ForgotPasswordSubmissionHandler(), s.PageMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteResetPassword, ChainMiddleware(s.ResetPasswordPageHandler(), s.PageMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteResetPassword, ChainMiddleware(s.ResetPasswordSubmissionHandler(), s.PageMiddleware()...))

	// PROTECTED (route guard)
	s.RegisterRouteHandler("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(), s.PageMiddleware(s.RequireRoute(guard.Authenticated))...))
	s.RegisterRouteHandler("GET "+RouteUserBookings, ChainMiddleware(s.UserBookingsHandler(), s.PageMiddleware(s.RequireRoute(guard.RequireRole(users.RoleUser)))...))
	s.RegisterRouteHandler("GET "+RouteAdminDashboard, ChainMiddleware(s.AdminDashboardHandler(), s.PageMiddleware(s.RequireRoute(guard.RequireRole(users.RoleAdmin)))...))
	s.RegisterRouteHandler("GET "+RouteManagerDashboard, ChainMiddleware(s.ManagerDashboardHandler(), s.PageMiddleware(s.RequireRoute(guard.RequireRole(users.RoleManager)))...))
}
