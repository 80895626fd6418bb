package validation

import (
	"bytes"
)

type FileType string

const (
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeOgg  FileType = "ogg"
	FileTypeMP4  FileType = "mp4"
	FileTypeWAV  FileType = "wav"
)

var contentTypes = map[FileType]string{
	FileTypePNG:  "image/png",
	FileTypeJPEG: "image/jpeg",
	FileTypeOgg:  "audio/ogg",
	FileTypeMP4:  "video/mp4",
	FileTypeWAV:  "audio/wav",
}

var magicBytes = map[FileType][]byte{
	FileTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG: {0xFF, 0xD8, 0xFF},
	FileTypeOgg:  []byte("OggS"),
	FileTypeWAV:  []byte("RIFF"),
}

// DetectFileType identifies the formats the compressor produces. MP4 is recognised by
// its ftyp box at offset 4.
func DetectFileType(data []byte) (FileType, bool) {
	if len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")) {
		return FileTypeMP4, true
	}
	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(data, signature) {
			return fileType, true
		}
	}
	return "", false
}

// ContentType returns the MIME type for an artifact, falling back to a generic binary
// type for anything unrecognised.
func ContentType(data []byte) string {
	if fileType, ok := DetectFileType(data); ok {
		return contentTypes[fileType]
	}
	return "application/octet-stream"
}

// CheckSize rejects empty uploads and uploads above max bytes. max <= 0 disables the
// upper bound.
func CheckSize(size, max int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if max > 0 && size > max {
		return ErrFileTooLarge
	}
	return nil
}
