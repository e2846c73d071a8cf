package api

import (
	"github.com/fishdeas/fishdeas/pkg/httputil"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// Request bodies

type registerRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name string `json:"name"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type sendResetPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email           string `json:"email"`
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Response bodies. Each embeds the envelope and adds its result field
// under the name the clients already consume.

type userSummary struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type registerResponse struct {
	httputil.Envelope
	RegisterResult userSummary `json:"registerResult"`
}

type loginResult struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type loginResponse struct {
	httputil.Envelope
	LoginResult loginResult `json:"loginResult"`
}

type profileResponse struct {
	httputil.Envelope
	ProfileResult userSummary `json:"profileResult"`
}

type updateUserResponse struct {
	httputil.Envelope
	UpdateResult userSummary `json:"updateResult"`
}

type refreshTokenResponse struct {
	httputil.Envelope
	Token string `json:"token"`
}

type articleResponse struct {
	httputil.Envelope
	ArticleResult *storage.Article `json:"articleResult"`
}

type articleListResponse struct {
	httputil.Envelope
	ArticleResults []*storage.Article `json:"articleResults"`
}

type createArticleResponse struct {
	httputil.Envelope
	CreateResult *storage.Article `json:"createResult"`
}

type updateArticleResponse struct {
	httputil.Envelope
	UpdateResult *storage.Article `json:"updateResult"`
}

type detectionResponse struct {
	httputil.Envelope
	DetectionResult *storage.Detection `json:"detectionResult"`
}

type detectionListResponse struct {
	httputil.Envelope
	DetectionResults []*storage.Detection `json:"detectionResults"`
}

type createDetectionResponse struct {
	httputil.Envelope
	CreateResult *storage.Detection `json:"createResult"`
}
