package licence

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

const ActorRoleHeader = "X-Actor-Role"

type issueBody struct {
	IssueDate  *time.Time `json:"issue_date"`
	ExpiryDate *time.Time `json:"expiry_date"`
}

type Handler struct {
	issuer    *IssuanceOrchestrator
	verifier  *VerificationService
	repo      *Repository
	artifacts ArtifactStore
	keys      *KeyManager
}

func NewHandler(issuer *IssuanceOrchestrator, verifier *VerificationService, repo *Repository, artifacts ArtifactStore, keys *KeyManager) *Handler {
	return &Handler{
		issuer:    issuer,
		verifier:  verifier,
		repo:      repo,
		artifacts: artifacts,
		keys:      keys,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/councils/:council_id/requests/:request_id/licence", h.Issue)
	v1.GET("/councils/:council_id/jwks", h.JWKS)
	v1.GET("/licences/:licence_no/verify", h.Verify)
	v1.GET("/licences/:licence_no/artifact", h.Artifact)
}

func (h *Handler) Issue(c *gin.Context) {
	var body issueBody
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(ValidationError("invalid request body", err))
		return
	}

	lic, err := h.issuer.Issue(c.Request.Context(), IssueRequest{
		RequestID:  c.Param("request_id"),
		CouncilID:  c.Param("council_id"),
		IssueDate:  body.IssueDate,
		ExpiryDate: body.ExpiryDate,
		Actor:      c.GetHeader(ActorRoleHeader),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, lic)
}

func (h *Handler) Verify(c *gin.Context) {
	res, err := h.verifier.Verify(c.Request.Context(), c.Param("licence_no"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Artifact(c *gin.Context) {
	ctx := c.Request.Context()
	licenceNo := c.Param("licence_no")

	lic, err := h.repo.FindByNo(ctx, licenceNo)
	if err != nil {
		if errors.Is(err, ErrLicenceNotFound) {
			_ = c.Error(NotFoundError("licence not found", err))
			return
		}
		_ = c.Error(PersistenceError("load licence", err))
		return
	}
	if lic.Status == StatusPending {
		_ = c.Error(NotFoundError("licence not found", nil))
		return
	}

	data, err := h.artifacts.Get(ctx, lic.LicenceNo)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			_ = c.Error(NotFoundError("licence artifact not found", err))
			return
		}
		_ = c.Error(PersistenceError("load licence artifact", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, slug.Make(lic.LicenceNo)))
	c.Data(http.StatusOK, ContentTypePDF, data)
}

func (h *Handler) JWKS(c *gin.Context) {
	set, err := JWKS(c.Request.Context(), h.keys, c.Param("council_id"))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			_ = c.Error(NotFoundError("council has no signing key", err))
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, set)
}
