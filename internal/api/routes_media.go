package api

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/jsmooother/ej-development-sub001/internal/app"
	"github.com/jsmooother/ej-development-sub001/internal/handlers"
	"github.com/jsmooother/ej-development-sub001/internal/middleware"
)

func registerMediaRoutes(r *gin.Engine, cfg *app.Config, deps Dependencies) error {
	integration, err := handlers.NewMediaIntegrationHandler(deps.Connection, deps.Sync, cfg.Site.AdminStatusPath)
	if err != nil {
		return err
	}
	feed, err := handlers.NewMediaFeedHandler(deps.Sync)
	if err != nil {
		return err
	}

	limits := cfg.Server.RateLimit
	store := deps.RateStore
	if !limits.Enabled {
		store = nil
	}

	admin := r.Group("/api/integrations/media")
	admin.Use(middleware.NoStore())
	{
		admin.GET("/connect", integration.Connect)
		admin.GET("/callback", integration.Callback)
		admin.POST("/sync", middleware.RateLimit(store, limits.SyncRequests, limits.Window), integration.Sync)
		admin.GET("/sync", integration.Status)
		admin.DELETE("/cache", integration.ClearCache)
		admin.POST("/disconnect", integration.Disconnect)
	}

	public := r.Group("/api/feed")
	public.Use(middleware.CORS(siteOrigin(cfg.Site.BaseURL)))
	{
		public.GET("/media",
			middleware.RateLimit(store, limits.FeedRequests, limits.Window),
			middleware.PublicCache(feedMaxAge),
			feed.List,
		)
		public.OPTIONS("/media", func(c *gin.Context) {})
	}
	return nil
}

// siteOrigin reduces the configured site URL to a scheme://host origin.
func siteOrigin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
