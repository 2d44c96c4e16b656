// Package update corrects study-level attributes across every instance of a
// study. Each instance is rewritten under a new version so readers of the old
// version are never handed a half-written file.
package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"dicom-object-store/models"
	"dicom-object-store/utils"
	"dicom-object-store/validator"

	"github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"golang.org/x/sync/errgroup"
)

var (
	ErrEmptyPatch        = errors.New("no attributes to update")
	ErrAttributeNotStudy = errors.New("attribute is not an updatable study attribute")
	ErrInvalidPatchValue = errors.New("invalid attribute value")
)

// updatableTags are the study attributes the index stores on the study row.
var updatableTags = []tag.Tag{
	tag.PatientID,
	tag.PatientName,
	tag.PatientBirthDate,
	tag.ReferringPhysicianName,
	tag.StudyDate,
	tag.StudyDescription,
	tag.AccessionNumber,
}

type IndexStore interface {
	BeginUpdateInstances(ctx context.Context, partitionKey int, studyInstanceUID string) ([]models.InstanceMetadata, error)
	EndUpdateInstances(ctx context.Context, partitionKey int, studyInstanceUID string, studyPatch map[string]string, fileProperties map[int64]*models.FileProperties) error
}

type ContentStore interface {
	GetInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier) (io.ReadCloser, error)
	StoreInstanceFile(ctx context.Context, id models.VersionedInstanceIdentifier, r io.Reader) (*models.FileProperties, error)
	StoreInstanceMetadata(ctx context.Context, id models.VersionedInstanceIdentifier, dataset dicom.Dataset) error
}

type Service struct {
	Index          IndexStore
	Content        ContentStore
	MaxParallelism int
	Logger         logrus.FieldLogger
}

func NewService(index IndexStore, content ContentStore, maxParallelism int, logger logrus.FieldLogger) *Service {
	return &Service{
		Index:          index,
		Content:        content,
		MaxParallelism: maxParallelism,
		Logger:         logger,
	}
}

// UpdateStudy applies patch to every Created instance of the study. When a
// rewrite fails the pending versions stay behind and are queued for cleanup by
// the next update of the same study.
func (s *Service) UpdateStudy(ctx context.Context, partitionKey int, studyInstanceUID string, patch map[tag.Tag]string) error {
	columns, err := studyColumns(patch)
	if err != nil {
		return err
	}

	instances, err := s.Index.BeginUpdateInstances(ctx, partitionKey, studyInstanceUID)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	fileProperties := make(map[int64]*models.FileProperties, len(instances))

	g, gctx := errgroup.WithContext(ctx)
	if s.MaxParallelism > 0 {
		g.SetLimit(s.MaxParallelism)
	}
	for _, instance := range instances {
		instance := instance
		g.Go(func() error {
			fp, err := s.rewriteInstance(gctx, instance, patch)
			if err != nil {
				return fmt.Errorf("update %s: %w", instance.String(), err)
			}
			mu.Lock()
			fileProperties[instance.NewVersion] = fp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.Logger.WithError(err).WithField("study_instance_uid", studyInstanceUID).Error("study update failed")
		return err
	}

	if err := s.Index.EndUpdateInstances(ctx, partitionKey, studyInstanceUID, columns, fileProperties); err != nil {
		return err
	}
	s.Logger.WithFields(logrus.Fields{
		"study_instance_uid": studyInstanceUID,
		"instances":          len(instances),
	}).Info("study updated")
	return nil
}

func (s *Service) rewriteInstance(ctx context.Context, instance models.InstanceMetadata, patch map[tag.Tag]string) (*models.FileProperties, error) {
	rc, err := s.Content.GetInstanceFile(ctx, instance.VersionedInstanceIdentifier)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	dataset, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse instance: %w", err)
	}
	dataset, err = ApplyPatch(dataset, patch)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, dataset, dicom.SkipVRVerification()); err != nil {
		return nil, fmt.Errorf("write instance: %w", err)
	}

	id := instance.VersionedInstanceIdentifier
	id.Version = instance.NewVersion
	fp, err := s.Content.StoreInstanceFile(ctx, id, &buf)
	if err != nil {
		return nil, err
	}
	if err := s.Content.StoreInstanceMetadata(ctx, id, dataset); err != nil {
		return nil, err
	}
	return fp, nil
}

// ApplyPatch replaces or adds the patched elements and keeps the dataset in
// ascending tag order.
func ApplyPatch(dataset dicom.Dataset, patch map[tag.Tag]string) (dicom.Dataset, error) {
	elements := make([]*dicom.Element, 0, len(dataset.Elements)+len(patch))
	seen := make(map[tag.Tag]bool, len(patch))
	for _, element := range dataset.Elements {
		value, ok := patch[element.Tag]
		if !ok {
			elements = append(elements, element)
			continue
		}
		replaced, err := dicom.NewElement(element.Tag, []string{value})
		if err != nil {
			return dataset, err
		}
		elements = append(elements, replaced)
		seen[element.Tag] = true
	}
	for t, value := range patch {
		if seen[t] {
			continue
		}
		added, err := dicom.NewElement(t, []string{value})
		if err != nil {
			return dataset, err
		}
		elements = append(elements, added)
	}
	sort.SliceStable(elements, func(i, j int) bool {
		a, b := elements[i].Tag, elements[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})
	return dicom.Dataset{Elements: elements}, nil
}

func studyColumns(patch map[tag.Tag]string) (map[string]string, error) {
	if len(patch) == 0 {
		return nil, ErrEmptyPatch
	}
	columns := make(map[string]string, len(patch))
	for t, value := range patch {
		if !isUpdatable(t) {
			return nil, fmt.Errorf("%w: %s", ErrAttributeNotStudy, t.String())
		}
		info, err := tag.Find(t)
		if err != nil {
			return nil, err
		}
		if t == tag.PatientID && utils.TrimPadding(value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidPatchValue, info.Name)
		}
		if err := validator.ValidateValue(info.VR, value); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPatchValue, info.Name, err)
		}
		columns[utils.ToSnakeCase(info.Name)] = utils.TrimPadding(value)
	}
	return columns, nil
}

func isUpdatable(t tag.Tag) bool {
	for _, u := range updatableTags {
		if u == t {
			return true
		}
	}
	return false
}
