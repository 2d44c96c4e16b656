package cmd

import (
	"context"
	"fmt"
	"strings"

	"dicom-object-store/models"
	"dicom-object-store/utils"

	"github.com/spf13/cobra"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var updateAttributes []string

var updateStudyCmd = &cobra.Command{
	Use:     "update-study <study instance uid>",
	Short:   "correct study level attributes of every instance of a study",
	Example: `  dicom-object-store update-study 1.2.840.1 --set PatientName=Doe^Jane --set 00100020=PID42`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parsePatch(updateAttributes)
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, closeApp, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeApp()

		return a.Update.UpdateStudy(ctx, models.DefaultPartitionKey, args[0], patch)
	},
}

// parsePatch parses "<keyword or tag path>=<value>" pairs.
func parsePatch(pairs []string) (map[tag.Tag]string, error) {
	patch := make(map[tag.Tag]string, len(pairs))
	for _, pair := range pairs {
		i := strings.Index(pair, "=")
		if i < 1 {
			return nil, fmt.Errorf("invalid attribute %q, want <tag>=<value>", pair)
		}
		t, err := utils.GetTagByNameOrCode(pair[:i])
		if err != nil {
			return nil, err
		}
		patch[t] = pair[i+1:]
	}
	return patch, nil
}

func init() {
	RootCmd.AddCommand(updateStudyCmd)
	updateStudyCmd.Flags().StringArrayVar(&updateAttributes, "set", nil, "attribute to set as <keyword or tag>=<value>, repeatable")
}
