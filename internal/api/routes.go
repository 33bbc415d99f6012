// Package api serves the read-only HTTP surface over the indexed data plus
// the websocket event stream.
package api

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/ordinals-indexer/internal/db"
	"github.com/rawblock/ordinals-indexer/internal/scanner"
)

type APIHandler struct {
	store *db.Store
	wsHub *Hub
	scan  *scanner.Scanner
}

func SetupRouter(store *db.Store, wsHub *Hub, scan *scanner.Scanner) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://rawblock.net,https://www.rawblock.net
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{store: store, wsHub: wsHub, scan: scan}

	limiter := NewRateLimiter(120, 30)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware(), AuthMiddleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/status", handler.handleStatus)
		api.GET("/stream", wsHub.Subscribe)

		api.GET("/deploys", handler.handleListDeploys)
		api.GET("/deploys/:id", handler.handleGetDeploy)
		api.GET("/deploys/:id/mints", handler.handleListMints)

		api.GET("/bitmaps", handler.handleListBitmaps)
		api.GET("/bitmaps/:number", handler.handleGetBitmap)
		api.GET("/bitmaps/:number/parcels", handler.handleListParcels)
		api.GET("/bitmaps/:number/pattern", handler.handleGetPattern)

		api.GET("/inscriptions/:id/history", handler.handleAddressHistory)
		api.GET("/blocks/:height/stats", handler.handleBlockStats)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "operational",
		"service": "RawBlock Ordinals Indexer v1.0",
	})
}

// handleStatus reports scanner progress for dashboards.
func (h *APIHandler) handleStatus(c *gin.Context) {
	if h.scan == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scanner not initialized"})
		return
	}
	c.JSON(http.StatusOK, h.scan.Progress())
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	return page, limit
}

func (h *APIHandler) handleListDeploys(c *gin.Context) {
	page, limit := pagination(c)
	deploys, total, err := h.store.ListDeploys(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list deploys", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       deploys,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) handleGetDeploy(c *gin.Context) {
	d, err := h.store.GetDeploy(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch deploy", "details": err.Error()})
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deploy not found"})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *APIHandler) handleListMints(c *gin.Context) {
	page, limit := pagination(c)
	mints, total, err := h.store.ListMintsByDeploy(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list mints", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       mints,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) handleListBitmaps(c *gin.Context) {
	page, limit := pagination(c)
	bitmaps, total, err := h.store.ListBitmaps(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list bitmaps", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       bitmaps,
		"totalCount": total,
		"page":       page,
		"limit":      limit,
	})
}

func bitmapNumber(c *gin.Context) (int64, bool) {
	n, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid bitmap number"})
		return 0, false
	}
	return n, true
}

func (h *APIHandler) handleGetBitmap(c *gin.Context) {
	n, ok := bitmapNumber(c)
	if !ok {
		return
	}
	b, err := h.store.GetBitmapByNumber(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch bitmap", "details": err.Error()})
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Bitmap not indexed"})
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *APIHandler) handleListParcels(c *gin.Context) {
	n, ok := bitmapNumber(c)
	if !ok {
		return
	}
	parcels, err := h.store.ListParcelsByBitmap(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list parcels", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": parcels, "bitmapNumber": n})
}

func (h *APIHandler) handleGetPattern(c *gin.Context) {
	n, ok := bitmapNumber(c)
	if !ok {
		return
	}
	p, err := h.store.GetPattern(c.Request.Context(), n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pattern", "details": err.Error()})
		return
	}
	if p == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pattern not generated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bitmapNumber": n, "pattern": p})
}

func (h *APIHandler) handleAddressHistory(c *gin.Context) {
	history, err := h.store.AddressHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": history})
}

func (h *APIHandler) handleBlockStats(c *gin.Context) {
	height, err := strconv.ParseInt(c.Param("height"), 10, 64)
	if err != nil || height < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid block height"})
		return
	}
	st, err := h.store.GetBlockStats(c.Request.Context(), height)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch block stats", "details": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Block not processed"})
		return
	}
	c.JSON(http.StatusOK, st)
}
