// Package dicomweb serves the DICOMweb store, retrieve and delete
// transactions plus the change feed and extended query tag resources.
package dicomweb

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"dicom-object-store/logging"
)

type ctxKey int

const (
	ctxInstances ctxKey = iota
	ctxRequestType
)

// API provides application resources and handlers.
type API struct {
	STOW       *STOWResource
	WADO       *WADOResource
	Delete     *DeleteResource
	ChangeFeed *ChangeFeedResource
	QueryTags  *QueryTagResource
}

// Services are the dependencies of the DICOMweb resources.
type Services struct {
	Store          StoreService
	Delete         DeleteService
	ChangeFeed     ChangeFeedService
	QueryTags      QueryTagService
	Reindexer      Reindexer
	Index          InstanceLocator
	Content        InstanceReader
	MaxRequestSize int64
}

// NewAPI configures and returns application API.
func NewAPI(s Services) *API {
	return &API{
		STOW:       NewSTOWResource(s.Store, s.MaxRequestSize),
		WADO:       NewWADOResource(s.Index, s.Content),
		Delete:     NewDeleteResource(s.Delete),
		ChangeFeed: NewChangeFeedResource(s.ChangeFeed, s.Content),
		QueryTags:  NewQueryTagResource(s.QueryTags, s.Reindexer),
	}
}

// Router provides application routes.
func (a *API) Router() *chi.Mux {
	r := chi.NewRouter()

	// STOW group
	r.Group(func(r chi.Router) {
		r.Post("/studies", a.STOW.save)
		r.Post("/studies/{studyUID}", a.STOW.save)
	})

	// WADO group
	r.Group(func(r chi.Router) {
		r.Use(a.WADO.ctx)
		r.With(a.WADO.ctxDefaultRequest).Get("/studies/{studyUID}", a.WADO.retrieve)
		r.With(a.WADO.ctxDefaultRequest).Get("/studies/{studyUID}/series/{seriesUID}", a.WADO.retrieve)
		r.With(a.WADO.ctxDefaultRequest).Get("/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}", a.WADO.retrieve)
		r.With(a.WADO.ctxMetadataRequest).Get("/studies/{studyUID}/metadata", a.WADO.retrieve)
		r.With(a.WADO.ctxMetadataRequest).Get("/studies/{studyUID}/series/{seriesUID}/metadata", a.WADO.retrieve)
		r.With(a.WADO.ctxMetadataRequest).Get("/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}/metadata", a.WADO.retrieve)
	})

	// Delete group
	r.Group(func(r chi.Router) {
		r.Delete("/studies/{studyUID}", a.Delete.delete)
		r.Delete("/studies/{studyUID}/series/{seriesUID}", a.Delete.delete)
		r.Delete("/studies/{studyUID}/series/{seriesUID}/instances/{instanceUID}", a.Delete.delete)
	})

	r.Route("/changefeed", func(r chi.Router) {
		r.Get("/", a.ChangeFeed.list)
		r.Get("/latest", a.ChangeFeed.latest)
	})

	r.Route("/extendedquerytags", func(r chi.Router) {
		r.Get("/", a.QueryTags.list)
		r.Post("/", a.QueryTags.add)
		r.Route("/{tagPath}", func(r chi.Router) {
			r.Get("/", a.QueryTags.get)
			r.Patch("/", a.QueryTags.update)
			r.Delete("/", a.QueryTags.delete)
		})
	})

	return r
}

func log(r *http.Request) logrus.FieldLogger {
	return logging.GetLogEntry(r)
}
