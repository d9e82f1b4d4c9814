package handlers

import (
	"net/http"

	"github.com/echo-ai/coach-gateway/pkg/gateway/apierror"
	"github.com/echo-ai/coach-gateway/pkg/gateway/mw"
)

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	apierror.Write(w, http.StatusNotFound, &apierror.Error{
		Type:      apierror.ErrInvalidRequest,
		Message:   "not found",
		Code:      "not_found",
		RequestID: reqID,
	})
}
