// Package querytag manages extended query tags: registration, the query
// status switch, deletion and reindexing of existing instances.
package querytag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dicom-object-store/database"
	"dicom-object-store/models"
	"dicom-object-store/utils"
	"dicom-object-store/validator"

	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var ErrInvalidQueryTag = errors.New("invalid extended query tag")

type Store interface {
	AddExtendedQueryTags(ctx context.Context, tags []*models.ExtendedQueryTag, maxAllowedCount int) ([]*models.ExtendedQueryTag, error)
	GetExtendedQueryTags(ctx context.Context, opts *database.SelectQueryOptions) ([]*models.ExtendedQueryTag, error)
	GetExtendedQueryTag(ctx context.Context, path string) (*models.ExtendedQueryTag, error)
	GetExtendedQueryTagsByOperation(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error)
	AssignReindexingOperation(ctx context.Context, tagKeys []int, operationID string) ([]*models.ExtendedQueryTag, error)
	CompleteReindexing(ctx context.Context, operationID string) ([]*models.ExtendedQueryTag, error)
	UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error)
	IncrementErrorCount(ctx context.Context, tagKey, delta int) error
	DeleteExtendedQueryTag(ctx context.Context, path string) error
}

type Service struct {
	Store           Store
	MaxAllowedCount int
	Logger          logrus.FieldLogger
}

func NewService(store Store, maxAllowedCount int, logger logrus.FieldLogger) *Service {
	return &Service{
		Store:           store,
		MaxAllowedCount: maxAllowedCount,
		Logger:          logger,
	}
}

// Add registers entries in the Adding status. The request is rejected as a
// whole when any entry is invalid.
func (s *Service) Add(ctx context.Context, entries []models.AddExtendedQueryTagEntry) ([]*models.ExtendedQueryTag, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no tags given", ErrInvalidQueryTag)
	}

	tags := make([]*models.ExtendedQueryTag, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		t, err := normalize(entry)
		if err != nil {
			return nil, err
		}
		if seen[t.TagPath] {
			return nil, fmt.Errorf("%w: %s is given more than once", ErrInvalidQueryTag, t.TagPath)
		}
		seen[t.TagPath] = true
		tags = append(tags, t)
	}

	added, err := s.Store.AddExtendedQueryTags(ctx, tags, s.MaxAllowedCount)
	if err != nil {
		return nil, err
	}
	for _, t := range added {
		s.Logger.WithField("tag", t.TagPath).WithField("level", t.TagLevel.String()).Info("extended query tag added")
	}
	return added, nil
}

func normalize(entry models.AddExtendedQueryTagEntry) (*models.ExtendedQueryTag, error) {
	path := strings.TrimSpace(entry.Path)
	t, err := utils.GetTagByNameOrCode(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQueryTag, err)
	}
	tagPath := models.FormatTagPath(t)
	if validator.IsCoreTag(t) {
		return nil, fmt.Errorf("%w: %s is always indexed", ErrInvalidQueryTag, tagPath)
	}

	vr := strings.ToUpper(strings.TrimSpace(entry.VR))
	privateCreator := strings.TrimSpace(entry.PrivateCreator)
	if t.Group%2 == 1 {
		if t.Element <= 0x00FF {
			return nil, fmt.Errorf("%w: %s is a private creator element", ErrInvalidQueryTag, tagPath)
		}
		if vr == "" {
			return nil, fmt.Errorf("%w: private tag %s needs a vr", ErrInvalidQueryTag, tagPath)
		}
		if privateCreator == "" {
			return nil, fmt.Errorf("%w: private tag %s needs a private creator", ErrInvalidQueryTag, tagPath)
		}
		if err := validator.ValidateValue("LO", privateCreator); err != nil {
			return nil, fmt.Errorf("%w: private creator: %v", ErrInvalidQueryTag, err)
		}
	} else {
		if privateCreator != "" {
			return nil, fmt.Errorf("%w: standard tag %s cannot have a private creator", ErrInvalidQueryTag, tagPath)
		}
		info, err := tag.Find(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQueryTag, err)
		}
		if vr == "" {
			vr = info.VR
		} else if !strings.Contains(info.VR, vr) {
			return nil, fmt.Errorf("%w: vr %s does not match %s of %s", ErrInvalidQueryTag, vr, info.VR, tagPath)
		}
	}

	if _, ok := models.DataTypeForVR(vr); !ok {
		return nil, fmt.Errorf("%w: vr %q of %s cannot be indexed", ErrInvalidQueryTag, vr, tagPath)
	}

	level, err := models.ParseQueryTagLevel(strings.TrimSpace(entry.Level))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQueryTag, err)
	}

	result := &models.ExtendedQueryTag{
		TagPath:  tagPath,
		TagVR:    vr,
		TagLevel: level,
	}
	if privateCreator != "" {
		result.TagPrivateCreator = &privateCreator
	}
	return result, nil
}

// NormalizePath resolves a keyword or hex code to the stored tag path.
func NormalizePath(path string) (string, error) {
	t, err := utils.GetTagByNameOrCode(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidQueryTag, err)
	}
	return models.FormatTagPath(t), nil
}

func (s *Service) Get(ctx context.Context, path string) (*models.ExtendedQueryTag, error) {
	tagPath, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return s.Store.GetExtendedQueryTag(ctx, tagPath)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.ExtendedQueryTag, error) {
	tags, err := s.Store.GetExtendedQueryTags(ctx, &database.SelectQueryOptions{
		Limit:   limit,
		Offset:  offset,
		OrderBy: "tag_key",
	})
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []*models.ExtendedQueryTag{}
	}
	return tags, nil
}

func (s *Service) UpdateQueryStatus(ctx context.Context, path string, status models.QueryStatus) (*models.ExtendedQueryTag, error) {
	tagPath, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return s.Store.UpdateQueryStatus(ctx, tagPath, status)
}

// Delete removes a tag and its values.
func (s *Service) Delete(ctx context.Context, path string) error {
	tagPath, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteExtendedQueryTag(ctx, tagPath); err != nil {
		return err
	}
	s.Logger.WithField("tag", tagPath).Info("extended query tag deleted")
	return nil
}

// GetQueryTags returns the indexing view of every registered tag, whatever
// its status.
func (s *Service) GetQueryTags(ctx context.Context) ([]models.QueryTag, error) {
	tags, err := s.Store.GetExtendedQueryTags(ctx, nil)
	if err != nil {
		return nil, err
	}
	return toQueryTags(tags)
}

func toQueryTags(tags []*models.ExtendedQueryTag) ([]models.QueryTag, error) {
	queryTags := make([]models.QueryTag, 0, len(tags))
	for _, t := range tags {
		q, err := models.NewQueryTag(t)
		if err != nil {
			return nil, err
		}
		queryTags = append(queryTags, q)
	}
	return queryTags, nil
}
