package models

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ProfilePhotoUploadForm holds the non-file fields of a multipart upload.
type ProfilePhotoUploadForm struct {
	UserID   string `form:"user_id" validate:"omitempty,max=128,printascii"`
	TempID   string `form:"temp_id" validate:"omitempty,max=128,printascii"`
	UploadID string `form:"upload_id" validate:"omitempty,uuid"`
}

func (f *ProfilePhotoUploadForm) Validate() error {
	return validate.Struct(f)
}

// RemovePhotoRequest is the JSON body of DELETE /profile-photos.
type RemovePhotoRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

func (r *RemovePhotoRequest) Validate() error {
	return validate.Struct(r)
}
