package dicomweb

import (
	"errors"
	"net/http"

	"dicom-object-store/changefeed"
	"dicom-object-store/models"
	"dicom-object-store/querytag"
	"dicom-object-store/update"

	"github.com/go-chi/render"
)

// ErrResponse renderer type for handling all sorts of errors.
type ErrResponse struct {
	Err            error `json:"-"` // low-level runtime error
	HTTPStatusCode int   `json:"-"` // http response status code

	StatusText string `json:"status"`          // user-level status message
	ErrorText  string `json:"error,omitempty"` // application-level error message, for debugging
}

// Render sets the application-specific error code in AppCode.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

// ErrInvalidRequest returns status 400 Bad Request for malformed request body.
func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     http.StatusText(http.StatusBadRequest),
		ErrorText:      err.Error(),
	}
}

func ErrUnsupportedMediaType(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusUnsupportedMediaType,
		StatusText:     http.StatusText(http.StatusUnsupportedMediaType),
		ErrorText:      err.Error(),
	}
}

func ErrConflict(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		StatusText:     http.StatusText(http.StatusConflict),
		ErrorText:      err.Error(),
	}
}

func errNotFound(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusNotFound,
		StatusText:     http.StatusText(http.StatusNotFound),
		ErrorText:      err.Error(),
	}
}

var (
	// ErrNotFound returns status 404 Not Found for invalid resource request.
	ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: http.StatusText(http.StatusNotFound)}

	// ErrInternalServerError returns status 500 Internal Server Error.
	ErrInternalServerError = &ErrResponse{HTTPStatusCode: http.StatusInternalServerError, StatusText: http.StatusText(http.StatusInternalServerError)}
)

// errRender classifies a service error.
func errRender(err error) render.Renderer {
	switch {
	case errors.Is(err, models.ErrStudyNotFound),
		errors.Is(err, models.ErrSeriesNotFound),
		errors.Is(err, models.ErrInstanceNotFound),
		errors.Is(err, models.ErrTagNotFound),
		errors.Is(err, models.ErrContentNotFound):
		return errNotFound(err)
	case errors.Is(err, models.ErrTagsAlreadyExist),
		errors.Is(err, models.ErrTagBusy),
		errors.Is(err, models.ErrPendingInstance):
		return ErrConflict(err)
	case errors.Is(err, models.ErrTagsExceedMaxAllowedCount),
		errors.Is(err, querytag.ErrInvalidQueryTag),
		errors.Is(err, changefeed.ErrInvalidLimit),
		errors.Is(err, changefeed.ErrInvalidOffset),
		errors.Is(err, changefeed.ErrInvalidWindow),
		errors.Is(err, update.ErrEmptyPatch),
		errors.Is(err, update.ErrAttributeNotStudy),
		errors.Is(err, update.ErrInvalidPatchValue):
		return ErrInvalidRequest(err)
	default:
		return ErrInternalServerError
	}
}

// renderError renders err and logs it when it is not a client error.
func renderError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	rdr := errRender(err)
	if rdr == ErrInternalServerError {
		log(r).WithError(err).Error(msg)
	}
	render.Render(w, r, rdr)
}
