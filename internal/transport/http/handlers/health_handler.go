package handlers

import (
	"net/http"

	"github.com/ivankudzin/matchcore/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/matchcore/internal/transport/http/errors"
)

func Health(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{OK: true})
}
