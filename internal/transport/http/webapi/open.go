package webapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	openmodel "panel-server-go/internal/domain/open/model"
	httptransport "panel-server-go/internal/transport/http"
)

func (s *Service) handleOpenToken(c *gin.Context) {
	grant, err := s.deps.Open.IssueToken(c.Request.Context(), c.Query("client_id"), c.Query("client_secret"))
	if err != nil {
		if errors.Is(err, openmodel.ErrInvalidClient) {
			httptransport.Respond(c, http.StatusBadRequest, nil, openmodel.ErrInvalidClient.Error())
			return
		}
		s.fail(c, err)
		return
	}
	httptransport.RespondSuccess(c, grant)
}
