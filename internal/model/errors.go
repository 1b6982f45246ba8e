package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, club, supplement, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNoClub             = "NO_CLUB"
	ErrCodeReadingNotFound    = "READING_NOT_FOUND"
	ErrCodeMeetingNotFound    = "MEETING_NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeFeedNotDetected    = "FEED_NOT_DETECTED"
	ErrCodeFetchFailed        = "FETCH_FAILED"
	ErrCodeParseFailed        = "PARSE_FAILED"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// IsCode はerrがAPIErrorで、指定コードを持つかを判定する。
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "The email or password is incorrect.",
		Category: "auth",
		Action:   "Check your credentials and sign in again.",
	}
}

// NewUnauthorizedError は未サインインのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You are not signed in.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewForbiddenError は権限不足のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Only club admins can manage readings and meetings.",
		Category: "auth",
		Action:   "Ask a club admin for access.",
	}
}

// NewNoClubError はセッションにクラブが紐付いていない場合のエラーを生成する。
func NewNoClubError() *APIError {
	return &APIError{
		Code:     ErrCodeNoClub,
		Message:  "Your account is not a member of any club.",
		Category: "club",
		Action:   "Ask a club admin to add you as a member.",
	}
}

// NewReadingNotFoundError は文献未検出エラーを生成する。
func NewReadingNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeReadingNotFound,
		Message:  fmt.Sprintf("Reading not found: %d", id),
		Category: "club",
		Action:   "Reload the page and try again.",
	}
}

// NewMeetingNotFoundError は集会未検出エラーを生成する。
func NewMeetingNotFoundError(id int64) *APIError {
	return &APIError{
		Code:     ErrCodeMeetingNotFound,
		Message:  fmt.Sprintf("Meeting not found: %d", id),
		Category: "club",
		Action:   "Reload the page and try again.",
	}
}

// NewValidationError は入力値の検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s %s", field, reason),
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: "validation",
		Action:   "Enter a public http:// or https:// URL.",
	}
}

// NewFeedNotDetectedError は補足資料フィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("No RSS or Atom feed was found at %s", url),
		Category: "supplement",
		Action:   "Enter the feed URL directly.",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("Failed to fetch supplements: %s", reason),
		Category: "supplement",
		Action:   "The feed will be retried on the next refresh.",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  "Failed to parse the supplement feed.",
		Category: "supplement",
		Action:   "Check that the URL serves a valid RSS or Atom feed.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests.",
		Category: "system",
		Action:   "Wait a moment and try again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Try again later.",
	}
}
