package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/woodshedhq/woodshed/internal/apperr"
	"github.com/woodshedhq/woodshed/internal/notes"
	"go.uber.org/zap"
)

const userIDContextKey = "woodshed_user_id"

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingNotesService   = errors.New("notes service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator checks a bearer token and returns the caller's user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the collaborators the HTTP edge needs.
type Dependencies struct {
	TokenValidator TokenValidator
	NotesService   *notes.Service
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the notes API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:       deps.TokenValidator,
		notesService: deps.NotesService,
		logger:       logger,
	}

	protected := router.Group("/workspaces/:workspaceID")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes/:noteID", handler.handleFindNote)
	protected.PATCH("/notes/:noteID", handler.handleUpdateNote)
	protected.DELETE("/notes/:noteID", handler.handleRemoveNote)
	protected.GET("/notes/slug/:slug", handler.handleFindNoteBySlug)
	protected.POST("/notes/resolve-links", handler.handleResolveLinks)

	return router, nil
}

type httpHandler struct {
	tokens       TokenValidator
	notesService *notes.Service
	logger       *zap.Logger
}

type createNotePayload struct {
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	ContentMD   string         `json:"content_md"`
	Visibility  string         `json:"visibility"`
	Frontmatter map[string]any `json:"frontmatter"`
	Tags        []string       `json:"tags"`
}

type updateNotePayload struct {
	Title       *string        `json:"title"`
	Slug        *string        `json:"slug"`
	ContentMD   *string        `json:"content_md"`
	Visibility  *string        `json:"visibility"`
	Frontmatter map[string]any `json:"frontmatter"`
	Tags        *[]string      `json:"tags"`
}

type resolveLinksPayload struct {
	Slugs []string `json:"slugs"`
}

type resolveLinksResponsePayload struct {
	Results map[string]*notes.NoteRef `json:"results"`
}

type notePayload struct {
	ID               string                   `json:"id"`
	WorkspaceID      string                   `json:"workspace_id"`
	Title            string                   `json:"title"`
	Slug             string                   `json:"slug"`
	ContentMD        string                   `json:"content_md"`
	Visibility       string                   `json:"visibility"`
	Frontmatter      map[string]any           `json:"frontmatter"`
	Tags             []string                 `json:"tags"`
	Blocks           []notes.BlockView        `json:"blocks"`
	OutgoingLinks    []notes.LinkView         `json:"outgoing_links"`
	IncomingLinks    []notes.IncomingLinkView `json:"incoming_links"`
	CreatedBy        string                   `json:"created_by"`
	UpdatedBy        string                   `json:"updated_by"`
	CreatedAtSeconds int64                    `json:"created_at_s"`
	UpdatedAtSeconds int64                    `json:"updated_at_s"`
}

func renderNote(hydrated *notes.HydratedNote) notePayload {
	return notePayload{
		ID:               hydrated.Note.ID,
		WorkspaceID:      hydrated.Note.WorkspaceID,
		Title:            hydrated.Note.Title,
		Slug:             hydrated.Note.Slug,
		ContentMD:        hydrated.Note.ContentMD,
		Visibility:       string(hydrated.Note.Visibility),
		Frontmatter:      hydrated.Frontmatter,
		Tags:             hydrated.Tags,
		Blocks:           hydrated.Blocks,
		OutgoingLinks:    hydrated.Outgoing,
		IncomingLinks:    hydrated.Incoming,
		CreatedBy:        hydrated.Note.CreatedBy,
		UpdatedBy:        hydrated.Note.UpdatedBy,
		CreatedAtSeconds: hydrated.Note.CreatedAtSeconds,
		UpdatedAtSeconds: hydrated.Note.UpdatedAtSeconds,
	}
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")

	var request createNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	hydrated, err := h.notesService.Create(c.Request.Context(), workspaceID, userID, notes.CreateNoteRequest{
		Title:       request.Title,
		Slug:        request.Slug,
		ContentMD:   request.ContentMD,
		Visibility:  request.Visibility,
		Frontmatter: request.Frontmatter,
		Tags:        request.Tags,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, renderNote(hydrated))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")
	noteID := c.Param("noteID")

	var request updateNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	hydrated, err := h.notesService.Update(c.Request.Context(), workspaceID, noteID, userID, notes.UpdateNoteRequest{
		Title:       request.Title,
		Slug:        request.Slug,
		ContentMD:   request.ContentMD,
		Visibility:  request.Visibility,
		Frontmatter: request.Frontmatter,
		Tags:        request.Tags,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, renderNote(hydrated))
}

func (h *httpHandler) handleFindNote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")
	noteID := c.Param("noteID")

	hydrated, err := h.notesService.FindOne(c.Request.Context(), workspaceID, noteID, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, renderNote(hydrated))
}

func (h *httpHandler) handleFindNoteBySlug(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")
	slug := c.Param("slug")

	hydrated, err := h.notesService.FindBySlug(c.Request.Context(), workspaceID, slug, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, renderNote(hydrated))
}

func (h *httpHandler) handleResolveLinks(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")

	var request resolveLinksPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	results, err := h.notesService.ResolveLinks(c.Request.Context(), workspaceID, userID, request.Slugs)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resolveLinksResponsePayload{Results: results})
}

func (h *httpHandler) handleRemoveNote(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	workspaceID := c.Param("workspaceID")
	noteID := c.Param("noteID")

	if err := h.notesService.Remove(c.Request.Context(), workspaceID, noteID, userID); err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeServiceError maps the error taxonomy onto HTTP statuses so clients can
// distinguish bad input, missing access, missing targets, and name conflicts.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	code := "internal_error"
	var classified *apperr.Error
	if errors.As(err, &classified) {
		code = classified.Code()
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": code})
	case apperr.KindPermission:
		c.JSON(http.StatusForbidden, gin.H{"error": code})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": code})
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": code})
	default:
		h.logger.Error("unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}
