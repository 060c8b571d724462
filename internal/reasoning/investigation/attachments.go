package investigation

import (
	"time"

	"github.com/kubilitics/kubilitics-investigator/internal/models"
)

const (
	unknownValue      = "unknown"
	defaultSourceType = "file_upload"
	pendingPreprocess = "pending"
)

// Attachment is a file reference supplied with a turn. Missing fields are
// filled with defaults rather than rejected.
type Attachment struct {
	FileID     string `json:"file_id,omitempty" yaml:"file_id,omitempty"`
	Filename   string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Size       int64  `json:"size,omitempty" yaml:"size,omitempty"`
	DataType   string `json:"data_type,omitempty" yaml:"data_type,omitempty"`
	SourceType string `json:"source_type,omitempty" yaml:"source_type,omitempty"`
	Summary    string `json:"summary,omitempty" yaml:"summary,omitempty"`
	S3URI      string `json:"s3_uri,omitempty" yaml:"s3_uri,omitempty"`
}

func (a Attachment) withDefaults() Attachment {
	if a.FileID == "" {
		a.FileID = models.NewID("file")
	}
	if a.Filename == "" {
		a.Filename = unknownValue
	}
	if a.DataType == "" {
		a.DataType = unknownValue
	}
	if a.SourceType == "" {
		a.SourceType = defaultSourceType
	}
	return a
}

func (a Attachment) contentRef() string {
	switch {
	case a.S3URI != "":
		return a.S3URI
	case a.FileID != "":
		return a.FileID
	}
	return unknownValue
}

func uploadedFile(a Attachment, turn int, now time.Time) models.UploadedFile {
	return models.UploadedFile{
		FileID:               a.FileID,
		Filename:             a.Filename,
		SizeBytes:            a.Size,
		DataType:             a.DataType,
		SourceType:           a.SourceType,
		UploadedAtTurn:       turn,
		UploadedAt:           now,
		PreprocessingSummary: a.Summary,
		ContentRef:           a.contentRef(),
	}
}

func evidenceFromAttachment(a Attachment, category models.EvidenceCategory, userID string, turn int, now time.Time) models.Evidence {
	return models.Evidence{
		ID:                  models.NewID("ev"),
		Summary:             "Uploaded file: " + a.Filename,
		Category:            category,
		SourceType:          a.SourceType,
		ContentRef:          a.contentRef(),
		ContentSizeBytes:    a.Size,
		PreprocessingMethod: pendingPreprocess,
		CollectedBy:         userID,
		CollectedAtTurn:     turn,
		CollectedAt:         now,
	}
}

// InferEvidenceCategory classifies new evidence from the case's progress.
func InferEvidenceCategory(p *models.InvestigationProgress) models.EvidenceCategory {
	switch {
	case !p.IsVerificationComplete():
		return models.EvidenceSymptom
	case p.SolutionProposed:
		return models.EvidenceResolution
	default:
		return models.EvidenceCausal
	}
}
