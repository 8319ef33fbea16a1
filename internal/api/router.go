// Package api exposes the reservation service over JSON/HTTP.
package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/leenbank/leenbank/internal/auth"
	"github.com/leenbank/leenbank/internal/imaging"
	"github.com/leenbank/leenbank/internal/model"
	"github.com/leenbank/leenbank/internal/reservation"
	"github.com/leenbank/leenbank/web"
)

// Options carries the settings the handlers need besides the database.
type Options struct {
	JWTSecret   string
	TokenTTL    time.Duration
	EmailDomain string
	ImageSize   int
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, opts Options) http.Handler {
	mux := http.NewServeMux()

	issuer := &auth.Issuer{Secret: opts.JWTSecret, TTL: opts.TokenTTL}
	emails := model.NewEmailPolicy(opts.EmailDomain)
	images := imaging.Processor{MaxDimension: opts.ImageSize}

	authHandler := &AuthHandler{DB: db, Issuer: issuer, Emails: emails}
	usersHandler := &UsersHandler{DB: db, Emails: emails}
	itemsHandler := &ItemsHandler{DB: db, Images: images}
	reservationsHandler := &ReservationsHandler{DB: db, Engine: reservation.NewEngine(db)}
	adminHandler := &AdminHandler{DB: db}

	authMW := AuthMiddleware(issuer, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	authed := func(h http.HandlerFunc) http.Handler { return authMW(h) }
	admin := func(h http.HandlerFunc) http.Handler { return authMW(requireAdmin(h)) }

	// Public.
	mux.HandleFunc("GET /healthz", healthz(db))
	mux.Handle("GET /images/", http.StripPrefix("/images/", http.FileServerFS(web.ImagesFS())))
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)

	// Own account.
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", admin(usersHandler.List))
	mux.Handle("POST /api/users", admin(usersHandler.Create))
	mux.Handle("GET /api/users/{id}", admin(usersHandler.Get))
	mux.Handle("PUT /api/users/{id}/password", admin(usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", admin(usersHandler.Delete))

	// Items: read (all roles), write (admin).
	mux.Handle("GET /api/items", authed(itemsHandler.List))
	mux.Handle("POST /api/items", admin(itemsHandler.Create))
	mux.Handle("GET /api/items/{id}", authed(itemsHandler.Get))
	mux.Handle("PUT /api/items/{id}", admin(itemsHandler.Update))
	mux.Handle("DELETE /api/items/{id}", admin(itemsHandler.Delete))
	mux.Handle("PUT /api/items/{id}/image", admin(itemsHandler.UploadImage))
	mux.Handle("GET /api/items/{id}/image", authed(itemsHandler.GetImage))
	mux.Handle("GET /api/items/{id}/history", admin(itemsHandler.GetHistory))

	// Reservations. Ownership checks happen in the engine.
	mux.Handle("GET /api/reservations", admin(reservationsHandler.List))
	mux.Handle("GET /api/reservations/my", authed(reservationsHandler.ListMine))
	mux.Handle("POST /api/reservations", authed(reservationsHandler.Create))
	mux.Handle("PATCH /api/reservations/{id}", authed(reservationsHandler.Update))
	mux.Handle("DELETE /api/reservations/{id}", authed(reservationsHandler.Delete))
	mux.Handle("PATCH /api/reservations/{id}/archive", admin(reservationsHandler.Archive))
	mux.Handle("GET /api/reservations/{id}/history", admin(reservationsHandler.GetHistory))

	// Consistency tools (admin only).
	mux.Handle("GET /api/admin/stock", admin(adminHandler.Stock))
	mux.Handle("GET /api/admin/reconcile", admin(adminHandler.Reconcile))
	mux.Handle("POST /api/admin/reconcile", admin(adminHandler.Repair))

	return mux
}

func healthz(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			jsonError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
