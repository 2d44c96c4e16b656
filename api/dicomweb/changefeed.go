package dicomweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dicom-object-store/models"

	"github.com/go-chi/render"
)

const defaultChangeFeedLimit = 10

type ChangeFeedService interface {
	GetChangeFeed(ctx context.Context, window models.TimeRange, offset int64, limit int, order models.ChangeFeedOrder) ([]*models.ChangeFeedEntry, error)
	GetChangeFeedLatest(ctx context.Context, order models.ChangeFeedOrder) (*models.ChangeFeedEntry, error)
}

type MetadataReader interface {
	GetInstanceMetadataJSON(ctx context.Context, id models.VersionedInstanceIdentifier) ([]byte, error)
}

// ChangeFeedResource serves the change feed, optionally with the current
// metadata of every instance that still exists.
type ChangeFeedResource struct {
	Service  ChangeFeedService
	Metadata MetadataReader
}

func NewChangeFeedResource(service ChangeFeedService, metadata MetadataReader) *ChangeFeedResource {
	return &ChangeFeedResource{
		Service:  service,
		Metadata: metadata,
	}
}

type changeFeedEntryResponse struct {
	*models.ChangeFeedEntry
	State    string          `json:"state"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (rs *ChangeFeedResource) newEntryResponse(ctx context.Context, entry *models.ChangeFeedEntry, includeMetadata bool) (*changeFeedEntryResponse, error) {
	resp := &changeFeedEntryResponse{ChangeFeedEntry: entry, State: "deleted"}
	if entry.CurrentWatermark == nil {
		return resp, nil
	}
	resp.State = "current"
	if *entry.CurrentWatermark != entry.OriginalWatermark {
		resp.State = "replaced"
	}
	if !includeMetadata {
		return resp, nil
	}

	id := models.VersionedInstanceIdentifier{
		InstanceIdentifier: models.InstanceIdentifier{
			PartitionKey:      entry.PartitionKey,
			StudyInstanceUID:  entry.StudyInstanceUID,
			SeriesInstanceUID: entry.SeriesInstanceUID,
			SOPInstanceUID:    entry.SOPInstanceUID,
		},
		Version: *entry.CurrentWatermark,
	}
	data, err := rs.Metadata.GetInstanceMetadataJSON(ctx, id)
	if errors.Is(err, models.ErrContentNotFound) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	resp.Metadata = data
	return resp, nil
}

func (rs *ChangeFeedResource) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var window models.TimeRange
	var offset int64
	limit := defaultChangeFeedLimit
	var err error
	if v := q.Get("startTime"); v != "" {
		if window.Start, err = time.Parse(time.RFC3339, v); err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid startTime: %w", err)))
			return
		}
	}
	if v := q.Get("endTime"); v != "" {
		if window.End, err = time.Parse(time.RFC3339, v); err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid endTime: %w", err)))
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.ParseInt(v, 10, 64); err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid offset: %w", err)))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid limit: %w", err)))
			return
		}
	}
	order, err := models.ParseChangeFeedOrder(q.Get("order"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	includeMetadata, err := parseBool(q.Get("includeMetadata"), true)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid includeMetadata: %w", err)))
		return
	}

	entries, err := rs.Service.GetChangeFeed(r.Context(), window, offset, limit, order)
	if err != nil {
		renderError(w, r, err, "failed to read change feed")
		return
	}

	resp := make([]*changeFeedEntryResponse, 0, len(entries))
	for _, entry := range entries {
		e, err := rs.newEntryResponse(r.Context(), entry, includeMetadata)
		if err != nil {
			renderError(w, r, err, "failed to read change feed metadata")
			return
		}
		resp = append(resp, e)
	}
	render.JSON(w, r, resp)
}

func (rs *ChangeFeedResource) latest(w http.ResponseWriter, r *http.Request) {
	order, err := models.ParseChangeFeedOrder(r.URL.Query().Get("order"))
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	includeMetadata, err := parseBool(r.URL.Query().Get("includeMetadata"), true)
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(fmt.Errorf("invalid includeMetadata: %w", err)))
		return
	}

	entry, err := rs.Service.GetChangeFeedLatest(r.Context(), order)
	if err != nil {
		renderError(w, r, err, "failed to read latest change feed entry")
		return
	}
	if entry == nil {
		render.NoContent(w, r)
		return
	}

	resp, err := rs.newEntryResponse(r.Context(), entry, includeMetadata)
	if err != nil {
		renderError(w, r, err, "failed to read change feed metadata")
		return
	}
	render.JSON(w, r, resp)
}

func parseBool(v string, fallback bool) (bool, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}
