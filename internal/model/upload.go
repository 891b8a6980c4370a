package model

// MaxUploadBytes bounds a single input upload.
const MaxUploadBytes int64 = 200 * 1024 * 1024

// UploadURLRequest asks for a presigned PUT URL for a new input file.
type UploadURLRequest struct {
	Filename      string `json:"filename" validate:"required,min=1,max=255"`
	ContentType   string `json:"content_type" validate:"required,min=3,max=128"`
	FileSizeBytes *int64 `json:"file_size_bytes" validate:"omitempty,min=1"`
}

// LegacyUploadURLRequest is the body of POST /generate-upload-url, which
// names the owner explicitly.
type LegacyUploadURLRequest struct {
	UserID        string `json:"user_id" validate:"required,min=1,max=128"`
	Filename      string `json:"filename" validate:"required,min=1,max=255"`
	ContentType   string `json:"content_type" validate:"required,min=3,max=128"`
	FileSizeBytes *int64 `json:"file_size_bytes" validate:"omitempty,min=1"`
}

// UploadURLResponse carries the presigned URL and the key to submit with the job.
type UploadURLResponse struct {
	UploadURL        string `json:"upload_url"`
	S3Key            string `json:"s3_key"`
	ExpiresIn        int    `json:"expires_in"`
	MaxFileSizeBytes int64  `json:"max_file_size_bytes"`
}

// DownloadURLResponse carries a presigned GET URL.
type DownloadURLResponse struct {
	DownloadURL string `json:"download_url"`
}
