package validation

import (
	"fmt"

	"mediaCompressor/models"
)

var (
	ErrUnknownMediaKind = fmt.Errorf("%w: media kind must be image, audio or video", models.ErrInvalidInput)
	ErrQualityRange     = fmt.Errorf("%w: quality must be between %d and %d", models.ErrInvalidInput, models.MinQuality, models.MaxQuality)
	ErrBitrate          = fmt.Errorf("%w: bitrate must be a positive number of kbps", models.ErrInvalidInput)
	ErrEmptyFile        = fmt.Errorf("%w: file is empty", models.ErrInvalidInput)
	ErrFileTooLarge     = fmt.Errorf("%w: file exceeds the size limit", models.ErrInvalidInput)
)
