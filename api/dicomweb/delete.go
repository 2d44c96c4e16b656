package dicomweb

import (
	"context"
	"net/http"

	"dicom-object-store/models"

	"github.com/go-chi/chi/v5"
)

type DeleteService interface {
	DeleteStudy(ctx context.Context, partitionKey int, studyInstanceUID string) error
	DeleteSeries(ctx context.Context, partitionKey int, studyInstanceUID, seriesInstanceUID string) error
	DeleteInstance(ctx context.Context, id models.InstanceIdentifier) error
}

// DeleteResource removes studies, series and instances from the index. Blobs
// are removed later by the cleanup reaper.
type DeleteResource struct {
	Service DeleteService
}

func NewDeleteResource(service DeleteService) *DeleteResource {
	return &DeleteResource{Service: service}
}

func (rs *DeleteResource) delete(w http.ResponseWriter, r *http.Request) {
	studyUID := chi.URLParam(r, "studyUID")
	seriesUID := chi.URLParam(r, "seriesUID")
	instanceUID := chi.URLParam(r, "instanceUID")

	var err error
	switch {
	case instanceUID != "":
		err = rs.Service.DeleteInstance(r.Context(), models.InstanceIdentifier{
			PartitionKey:      models.DefaultPartitionKey,
			StudyInstanceUID:  studyUID,
			SeriesInstanceUID: seriesUID,
			SOPInstanceUID:    instanceUID,
		})
	case seriesUID != "":
		err = rs.Service.DeleteSeries(r.Context(), models.DefaultPartitionKey, studyUID, seriesUID)
	default:
		err = rs.Service.DeleteStudy(r.Context(), models.DefaultPartitionKey, studyUID)
	}
	if err != nil {
		renderError(w, r, err, "delete failed")
		return
	}

	log(r).WithField("study_instance_uid", studyUID).
		WithField("series_instance_uid", seriesUID).
		WithField("sop_instance_uid", instanceUID).
		Info("deleted")
	w.WriteHeader(http.StatusNoContent)
}
