package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/bookclub/internal/model"
)

// tokenIssuer はトークンのissクレームに設定する値。
const tokenIssuer = "bookclub"

// Claims はアクセストークンのペイロード。
// club_idはテナント判定に使われるカスタムクレーム。
type Claims struct {
	Email  string `json:"email,omitempty"`
	ClubID string `json:"club_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager はHS256署名のアクセストークンを発行・検証する。
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Issue はセッションに対応するアクセストークンを発行する。
// jtiにはセッションIDを設定し、サインアウト時の失効に使う。
func (m *TokenManager) Issue(session *model.Session) (string, error) {
	claims := Claims{
		Email:  session.Email,
		ClubID: session.ClubID,
		Role:   string(session.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   session.UserID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// Verify は署名・発行者・有効期限を検証し、クレームを返す。
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("invalid access token: missing subject or id")
	}
	return claims, nil
}

// VerifyIgnoringExpiry は有効期限切れのトークンも受け付けて署名を検証する。
// サインアウト時に期限切れセッションの行を削除するために使う。
func (m *TokenManager) VerifyIgnoringExpiry(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}
	// クレーム検証を無効にしているため発行者は個別に確認する
	if claims.Issuer != tokenIssuer {
		return nil, errors.New("invalid access token: unexpected issuer")
	}
	return claims, nil
}

func (m *TokenManager) keyFunc(_ *jwt.Token) (any, error) {
	return m.secret, nil
}
