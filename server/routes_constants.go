package server

import "github.com/turfbook/turf-client/auth"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteHome         = auth.RouteHome
	RouteUnauthorized = "/unauthorized"
	RouteSession      = "/session"

	// Auth Routes
	RouteLogin          = auth.RouteLogin
	RouteLogout         = "/auth/logout"
	RouteRegister       = "/auth/register"
	RouteVerifyOtp      = auth.RouteVerifyOtp
	RouteForgotPassword = "/auth/forgot-password"
	RouteResetPassword  = "/auth/reset-password/{token}"

	// Any session
	RouteProfile = "/profile"

	// Role dashboards
	RouteUserBookings     = "/user/bookings"
	RouteAdminDashboard   = "/admin/dashboard"
	RouteManagerDashboard = "/manager/dashboard"
)
