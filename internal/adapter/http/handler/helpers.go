package handler

import (
	"strconv"

	"invoice-financing/internal/adapter/http/middleware"
	"invoice-financing/internal/core/domain"
	"invoice-financing/pkg/apperror"
	"invoice-financing/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// bindJSON binds and sanitizes a request body, writing a validation error on failure.
func bindJSON(c *gin.Context, req any, sanitize func(any)) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return false
	}
	if sanitize != nil {
		sanitize(req)
	}
	return true
}

// uuidParam parses a path parameter, writing a validation error on failure.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated party, writing an auth error when absent.
func caller(c *gin.Context) (domain.Party, bool) {
	party, ok := middleware.CurrentParty(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return domain.Party{}, false
	}
	return party, true
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}
