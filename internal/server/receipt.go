package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	receiptdomain "github.com/smartreceipt/smartreceipt/internal/receipt/domain"
	"github.com/smartreceipt/smartreceipt/pkg/db/pagination"
)

// maxImageBytes bounds uploads before they reach the scanner.
const maxImageBytes = 10 << 20

// CreateReceipt accepts either a multipart image upload (AI scan path) or a
// JSON body (manual entry, quota-free).
func (s *Server) CreateReceipt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		s.createReceiptFromImage(c, userID)
		return
	}
	s.createReceiptManual(c, userID)
}

func (s *Server) createReceiptFromImage(c *gin.Context, userID snowflake.ID) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		AbortWithError(c, newValidationError("image", "image_required", "image file is required"))
		return
	}
	if fileHeader.Size > maxImageBytes {
		AbortWithError(c, newValidationError("image", "image_too_large", "image exceeds the 10MB upload limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	imageURL, err := s.store.Save(c.Request.Context(), fileHeader.Filename, image)
	if err != nil {
		s.log.Error("image store failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	receipt, err := s.receiptSvc.CreateFromImage(c.Request.Context(), receiptdomain.CreateFromImageRequest{
		UserID:   userID,
		Image:    image,
		MimeType: mimeType,
		ImageURL: imageURL,
	})
	if err != nil {
		// The receipt never landed; drop the orphaned file.
		_ = s.store.Remove(c.Request.Context(), imageURL)
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": receipt})
}

func (s *Server) createReceiptManual(c *gin.Context, userID snowflake.ID) {
	var req receiptdomain.CreateManualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.UserID = userID

	receipt, err := s.receiptSvc.CreateManual(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": receipt})
}

func (s *Server) GetReceipt(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, receiptdomain.ErrReceiptNotFound)
		return
	}

	receipt, err := s.receiptSvc.GetByID(c.Request.Context(), userID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) ListReceipts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.receiptSvc.List(c.Request.Context(), receiptdomain.ListRequest{
		UserID:    userID,
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
