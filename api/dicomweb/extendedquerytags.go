package dicomweb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"dicom-object-store/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const defaultTagListLimit = 100

type QueryTagService interface {
	Add(ctx context.Context, entries []models.AddExtendedQueryTagEntry) ([]*models.ExtendedQueryTag, error)
	Get(ctx context.Context, path string) (*models.ExtendedQueryTag, error)
	List(ctx context.Context, limit, offset int) ([]*models.ExtendedQueryTag, error)
	UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error)
	Delete(ctx context.Context, path string) error
}

// Reindexer indexes existing instances for tags in the Adding status.
type Reindexer interface {
	Run(ctx context.Context) (string, error)
}

type QueryTagResource struct {
	Service   QueryTagService
	Reindexer Reindexer
}

func NewQueryTagResource(service QueryTagService, reindexer Reindexer) *QueryTagResource {
	return &QueryTagResource{
		Service:   service,
		Reindexer: reindexer,
	}
}

type addTagsRequest []models.AddExtendedQueryTagEntry

func (a *addTagsRequest) Bind(r *http.Request) error {
	if len(*a) == 0 {
		return errors.New("at least one extended query tag is required")
	}
	return nil
}

type updateTagRequest struct {
	QueryStatus string `json:"query_status"`

	status models.QueryStatus
}

func (u *updateTagRequest) Bind(r *http.Request) error {
	status, err := models.ParseQueryStatus(u.QueryStatus)
	if err != nil {
		return err
	}
	u.status = status
	return nil
}

func (rs *QueryTagResource) list(w http.ResponseWriter, r *http.Request) {
	limit, offset := defaultTagListLimit, 0
	var err error
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid limit %q", v)))
			return
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid offset %q", v)))
			return
		}
	}

	tags, err := rs.Service.List(r.Context(), limit, offset)
	if err != nil {
		renderError(w, r, err, "failed to list extended query tags")
		return
	}
	if tags == nil {
		tags = []*models.ExtendedQueryTag{}
	}
	render.JSON(w, r, tags)
}

func (rs *QueryTagResource) add(w http.ResponseWriter, r *http.Request) {
	var req addTagsRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	added, err := rs.Service.Add(r.Context(), []models.AddExtendedQueryTagEntry(req))
	if err != nil {
		renderError(w, r, err, "failed to add extended query tags")
		return
	}

	if rs.Reindexer != nil {
		ctx := context.WithoutCancel(r.Context())
		logger := log(r)
		go func() {
			operationID, err := rs.Reindexer.Run(ctx)
			if err != nil {
				logger.WithError(err).WithField("operation_id", operationID).Error("reindex failed")
			}
		}()
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, added)
}

func (rs *QueryTagResource) get(w http.ResponseWriter, r *http.Request) {
	t, err := rs.Service.Get(r.Context(), chi.URLParam(r, "tagPath"))
	if err != nil {
		renderError(w, r, err, "failed to get extended query tag")
		return
	}
	render.JSON(w, r, t)
}

func (rs *QueryTagResource) update(w http.ResponseWriter, r *http.Request) {
	var req updateTagRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	t, err := rs.Service.UpdateQueryStatus(r.Context(), chi.URLParam(r, "tagPath"), req.status)
	if err != nil {
		renderError(w, r, err, "failed to update extended query tag")
		return
	}
	render.JSON(w, r, t)
}

func (rs *QueryTagResource) delete(w http.ResponseWriter, r *http.Request) {
	if err := rs.Service.Delete(r.Context(), chi.URLParam(r, "tagPath")); err != nil {
		renderError(w, r, err, "failed to delete extended query tag")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
