package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/velora/crm-server/internal/auth"
)

// SetupRoutes configures all API routes. The /api group carries the auth
// middleware; /health and /auth/* stay open.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	// CORS - allow credentials for auth cookies, explicit origins only
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://admin.velora.com.br", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Auth routes (no auth required)
	if authManager != nil {
		r.Get("/auth/login", authManager.HandleLogin)
		r.Get("/auth/callback", authManager.HandleCallback)
		r.Get("/auth/logout", authManager.HandleLogout)
		r.Get("/auth/user", authManager.HandleUserInfo)
	}

	// API routes (protected by auth middleware)
	devMode := os.Getenv("DEV_MODE") == "true" || os.Getenv("ENVIRONMENT") == "development"

	r.Route("/api", func(r chi.Router) {
		// Apply auth middleware to all API routes (skip in dev mode)
		if authManager != nil && !devMode {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if !authManager.IsAuthenticated(req) {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusUnauthorized)
						w.Write([]byte(`{"error":"unauthorized"}`))
						return
					}
					next.ServeHTTP(w, req)
				})
			})
		}

		// Customers
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Get("/{id}", h.GetCustomer)
			r.Post("/export", h.ExportCustomers)
			r.Post("/{id}/block", h.BlockCustomer)
			r.Post("/{id}/unblock", h.UnblockCustomer)
			r.Post("/{id}/tags", h.AssignTag)
			r.Delete("/{id}/tags/{tagId}", h.UnassignTag)
		})

		// Tags
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.ListTags)
			r.Post("/", h.CreateTag)
			r.Delete("/{id}", h.DeleteTag)
		})

		// Segments and the filter builder
		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.ListSegments)
			r.Post("/", h.CreateSegment)
			r.Get("/catalog", h.GetFilterCatalog)
			r.Post("/preview", h.PreviewSegment)
			r.Get("/{id}", h.GetSegment)
			r.Put("/{id}", h.UpdateSegment)
			r.Delete("/{id}", h.ArchiveSegment)
		})

		// Campaigns
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", h.ListCampaigns)
			r.Post("/", h.CreateCampaign)
			r.Get("/{id}", h.GetCampaign)
			r.Put("/{id}", h.UpdateCampaign)
			r.Post("/{id}/send", h.SendCampaign)
			r.Post("/{id}/pause", h.PauseCampaign)
			r.Post("/{id}/resume", h.ResumeCampaign)
			r.Post("/{id}/cancel", h.CancelCampaign)
			r.Get("/{id}/logs", h.GetCampaignLogs)
			r.Post("/{id}/test-send", h.TestSendCampaign)
			r.Post("/{id}/export", h.ExportCampaignAudience)
		})

		// Templates
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.ListTemplates)
			r.Post("/sync", h.SyncTemplates)
		})

		// Analytics
		r.Get("/analytics/navigation", h.GetNavigationStats)
	})

	return r
}
