// Package dto provides Data Transfer Objects for API responses.
package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/tierhost/tierhost/internal/model"
	"github.com/tierhost/tierhost/internal/service"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResultResponse carries a plain status message.
type ResultResponse struct {
	Result string `json:"result"`
}

// FileResponse is a file shaped for the caller's tier. The image keys
// present depend on the tier; a key whose image could not be produced
// is null.
type FileResponse map[string]any

// ToFileResponse converts a FileView. Relative URLs are resolved against base.
func ToFileResponse(v *service.FileView, base string) FileResponse {
	f := v.File
	resp := FileResponse{
		"id":            f.ID,
		"created_by":    f.OwnerUsername,
		"created_by_id": f.OwnerID,
		"name":          f.Name,
		"file_format":   string(f.Format),
		"date_started":  f.CreatedAt.UTC().Format(time.DateOnly),
		"last_edited":   f.UpdatedAt.UTC().Format(time.DateOnly),
	}

	if v.Shape.ImageURL {
		resp["image_url"] = nullableURL(v.ImageURL, base)
	}
	for _, size := range v.Shape.DerivedSizes {
		resp["image_thumbnail"+strconv.Itoa(size)] = nullableURL(v.Thumbnails[size], base)
	}

	return resp
}

// ToFileListResponse converts a list of FileViews.
func ToFileListResponse(views []*service.FileView, base string) []FileResponse {
	out := make([]FileResponse, 0, len(views))
	for _, v := range views {
		out = append(out, ToFileResponse(v, base))
	}
	return out
}

func nullableURL(u, base string) any {
	if u == "" {
		return nil
	}
	if strings.HasPrefix(u, "/") {
		return base + u
	}
	return u
}

// TempLinkResponse is returned when a temporary link is issued.
type TempLinkResponse struct {
	ID         string    `json:"id"`
	ExpiryDate time.Time `json:"expiry_date"`
	TempURL    string    `json:"temp_url"`
}

// ToTempLinkResponse converts a TemporaryLink.
func ToTempLinkResponse(l *model.TemporaryLink, base string) *TempLinkResponse {
	return &TempLinkResponse{
		ID:         l.ID,
		ExpiryDate: l.ExpiresAt.UTC(),
		TempURL:    base + "/exp/use/" + l.Token + "/",
	}
}

// UserResponse is the admin view of an account.
type UserResponse struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Tier        string   `json:"tier"`
	Images      []string `json:"images"`
	ExpiryLinks []string `json:"expiry_links"`
}

// ToUserResponse converts a UserDetail.
func ToUserResponse(u *model.UserDetail) *UserResponse {
	resp := &UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Tier:        string(u.Tier),
		Images:      u.FileIDs,
		ExpiryLinks: u.LinkIDs,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if resp.ExpiryLinks == nil {
		resp.ExpiryLinks = []string{}
	}
	return resp
}

// ToUserListResponse converts a list of UserDetails.
func ToUserListResponse(users []*model.UserDetail) []*UserResponse {
	out := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, ToUserResponse(u))
	}
	return out
}
