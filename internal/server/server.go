// Package server implements the notification REST API consumed by
// store.RemoteStore, the push publish endpoint, and a listings endpoint
// used as the poll snapshot source.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/push"
	"github.com/nhle/carfeed/internal/source/listings"
	"github.com/nhle/carfeed/internal/store"
)

// Server is the carfeed HTTP API.
type Server struct {
	router    *gin.Engine
	store     store.Store
	publisher push.Publisher
	listings  *listingRegistry
	logger    *slog.Logger
}

// New creates a Server. Requests are authenticated with HS256 tokens signed
// by secret.
func New(st store.Store, pub push.Publisher, secret string, logger *slog.Logger) (*Server, error) {
	if secret == "" {
		return nil, fmt.Errorf("creating server: empty jwt secret")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(RequestLogger(logger))

	s := &Server{
		router:    router,
		store:     st,
		publisher: pub,
		listings:  newListingRegistry(),
		logger:    logger,
	}
	s.setupRoutes(secret)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupRoutes configures API routing.
func (s *Server) setupRoutes(secret string) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "carfeed"})
	})

	api := s.router.Group("")
	api.Use(JWTAuth(secret))
	{
		notifications := api.Group("/notifications")
		{
			notifications.GET("", s.handleList())
			notifications.POST("", s.handleCreate())
			notifications.PATCH("/:id", s.handleMarkRead())
			notifications.POST("/mark-all-read", s.handleMarkAllRead())
		}

		api.POST("/events", s.handlePublish())

		users := api.Group("/users/:id")
		{
			users.GET("/listings", s.handleListListings())
			users.PUT("/listings/:listingId", s.handlePutListing())
		}
	}
}

// handleList returns the caller's notifications.
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)

		filter := store.NotificationFilter{UnreadOnly: c.Query("unread") == "true"}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			filter.Limit = limit
		}

		list, err := s.store.ListNotifications(c.Request.Context(), userID, filter)
		if err != nil {
			s.logger.Error("listing notifications", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
			return
		}
		if list == nil {
			list = []model.Notification{}
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleCreate stores a notification for the caller.
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)

		var req store.CreateNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
		if !req.Type.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
			return
		}

		created, err := s.store.CreateNotification(c.Request.Context(), model.Notification{
			UserID:         userID,
			Type:           req.Type,
			Title:          req.Title,
			Body:           req.Body,
			Meta:           req.Meta,
			CorrelationKey: req.CorrelationKey,
			CreatedAt:      req.CreatedAt,
		})
		if err != nil {
			s.logger.Error("creating notification", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
			return
		}
		c.JSON(http.StatusCreated, created)
	}
}

// handleMarkRead marks one of the caller's notifications read.
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		id := c.Param("id")

		var req store.MarkReadRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.Read {
			c.JSON(http.StatusBadRequest, gin.H{"error": `body must be {"read": true}`})
			return
		}

		err := s.store.MarkNotificationRead(c.Request.Context(), userID, id)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		if err != nil {
			s.logger.Error("marking notification read", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleMarkAllRead marks all of the caller's notifications read.
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if err := s.store.MarkAllNotificationsRead(c.Request.Context(), userID); err != nil {
			s.logger.Error("marking all notifications read", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notifications read"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handlePublish forwards a push envelope to its user's subscribers. An
// envelope without user_id is addressed to the caller.
func (s *Server) handlePublish() gin.HandlerFunc {
	return func(c *gin.Context) {
		var env push.Envelope
		if err := c.ShouldBindJSON(&env); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid envelope: " + err.Error()})
			return
		}
		if !push.KnownType(env.Type) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown message type"})
			return
		}
		if env.UserID == "" {
			env.UserID = GetUserID(c)
		}
		if env.SentAt.IsZero() {
			env.SentAt = time.Now().UTC()
		}

		if err := s.publisher.Publish(c.Request.Context(), env); err != nil {
			s.logger.Error("publishing push message", "user_id", env.UserID, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to publish"})
			return
		}
		c.Status(http.StatusAccepted)
	}
}

// handleListListings returns the caller's listings.
func (s *Server) handleListListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if userID != GetUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "listings belong to another user"})
			return
		}

		owned := s.listings.list(userID)
		resp := listings.ListingsResponse{
			Listings: make([]listings.Listing, 0, len(owned)),
			Total:    len(owned),
		}
		for _, r := range owned {
			resp.Listings = append(resp.Listings, listings.Listing{
				ID: r.ID, Status: r.Status, Make: r.Make, Model: r.Model, Year: r.Year, Title: r.Title,
			})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handlePutListing creates or updates one of the caller's listings and
// pushes the matching created or status-changed message.
func (s *Server) handlePutListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if userID != GetUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "listings belong to another user"})
			return
		}

		var body listings.Listing
		if err := c.ShouldBindJSON(&body); err != nil || body.Status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "listing status required"})
			return
		}
		r := model.Resource{
			ID: c.Param("listingId"), Status: body.Status,
			Make: body.Make, Model: body.Model, Year: body.Year, Title: body.Title,
		}

		prev, existed := s.listings.put(userID, r)
		env := push.Envelope{UserID: userID, SentAt: time.Now().UTC()}
		switch {
		case !existed:
			env.Type = push.TypeListingCreated
			env.Title = "Listing created"
			env.Body = r.DisplayName() + " is live"
			env.Meta = model.Meta{model.MetaCarID: r.ID}
		case prev.Status != r.Status:
			env.Type = push.TypeListingStatusChanged
			env.Title = "Listing status updated"
			env.Body = r.DisplayName() + " is now " + r.Status
			env.Meta = model.Meta{
				model.MetaCarID:          r.ID,
				model.MetaStatus:         r.Status,
				model.MetaPreviousStatus: prev.Status,
			}
		}

		if env.Type != "" {
			if err := s.publisher.Publish(c.Request.Context(), env); err != nil {
				// Pollers still pick the change up.
				s.logger.Warn("publishing listing change", "user_id", userID, "error", err)
			}
		}
		body.ID = r.ID
		c.JSON(http.StatusOK, body)
	}
}
