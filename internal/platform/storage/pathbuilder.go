package storage

import (
	"fmt"
	"path"
	"strings"
)

// ObjectPurpose selects the object layout used for an upload.
type ObjectPurpose string

const (
	PurposeDeliveryProof ObjectPurpose = "delivery-proof"
)

// PathParams provide the identifiers used to compose object keys.
type PathParams struct {
	DistributionID string
	UploadID       string
	FileName       string
}

// PathBuilder composes the object path for a given purpose.
type PathBuilder func(PathParams) (string, error)

var pathBuilders = map[ObjectPurpose]PathBuilder{
	PurposeDeliveryProof: buildDeliveryProofPath,
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose ObjectPurpose, params PathParams) (string, error) {
	builder, ok := pathBuilders[purpose]
	if !ok {
		return "", fmt.Errorf("storage: unsupported object purpose %q", purpose)
	}
	return builder(params)
}

// delivery proofs live under distributions/{id}/proofs/{upload}/{file}.
func buildDeliveryProofPath(params PathParams) (string, error) {
	distributionID, err := cleanSegment("distributionID", params.DistributionID)
	if err != nil {
		return "", err
	}
	uploadID, err := cleanSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := cleanSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}
	return path.Join("distributions", distributionID, "proofs", uploadID, fileName), nil
}

func cleanSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", name)
	case strings.ContainsAny(value, "/\\"):
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	case strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
