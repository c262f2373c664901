package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"sosmed/models"
	"sosmed/pkg/apperr"
	"sosmed/pkg/session"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 5

var (
	emailRE  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	handleRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	errInvalidCredentials = apperr.Unauthenticated("Invalid Username or Password")
	errInvalidRefresh     = apperr.Unauthenticated("Invalid refresh token")
)

type signupInput struct {
	UserName string `json:"userName"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// hashPassword maps bcrypt's input errors to Validation.
func hashPassword(password string, cost int) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, apperr.Validation("Password must be at most 72 bytes")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return hash, nil
}

// registerUser validates and stores a new user. Handle and email must not be
// taken by anyone; the check is repeated by the unique indexes on insert.
func (a *App) registerUser(ctx context.Context, in signupInput) (models.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	switch {
	case in.UserName == "" || in.FullName == "" || in.Email == "" || in.Password == "":
		return models.User{}, apperr.Validation("All fields are required")
	case !emailRE.MatchString(in.Email):
		return models.User{}, apperr.Validation("Invalid email")
	case len(in.Password) < minPasswordLen:
		return models.User{}, apperr.Validation(fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
	case !handleRE.MatchString(in.UserName):
		return models.User{}, apperr.Validation("Invalid username format")
	}

	db := a.db.WithContext(ctx)
	var taken int64
	if err := db.Model(&models.User{}).
		Where("user_name = ? OR email = ?", in.UserName, in.Email).
		Count(&taken).Error; err != nil {
		return models.User{}, apperr.Internal(err)
	}
	if taken > 0 {
		return models.User{}, errIdentityTaken()
	}

	hash, err := hashPassword(in.Password, a.cfg.BcryptCost)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{
		UserName:       in.UserName,
		FullName:       in.FullName,
		Email:          in.Email,
		HashedPassword: hash,
	}
	if err := db.Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) { // lost a race after the pre-check
			return models.User{}, errIdentityTaken()
		}
		return models.User{}, apperr.Internal(err)
	}
	return user, nil
}

func errIdentityTaken() error {
	return apperr.Conflict("Username or Email already in use")
}

// authenticate returns the user for a handle and password. Unknown handles
// and wrong passwords fail with the same error.
func (a *App) authenticate(ctx context.Context, handle, password string) (models.User, error) {
	var user models.User
	err := a.db.WithContext(ctx).Where("user_name = ?", handle).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(a.dummyHash(), []byte(password))
		return models.User{}, errInvalidCredentials
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		return models.User{}, errInvalidCredentials
	}
	return user, nil
}

// issueSessionPair mints both tokens and makes the refresh token the only
// one stored for the user, replacing any earlier session.
func (a *App) issueSessionPair(ctx context.Context, userID uint) (session.Pair, error) {
	pair, err := a.issuer.Pair(userID)
	if err != nil {
		return session.Pair{}, apperr.Internal(err)
	}
	res := a.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("refresh_token_hash", session.HashToken(pair.RefreshToken))
	if res.Error != nil {
		return session.Pair{}, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return session.Pair{}, apperr.Internal(fmt.Errorf("store refresh token: user %d not found", userID))
	}
	return pair, nil
}

// rotateSession exchanges a refresh token for a new pair. The swap only
// happens while the presented token is still the stored one, so a token
// can be redeemed once and a superseded token never.
func (a *App) rotateSession(ctx context.Context, refreshToken string) (session.Pair, error) {
	userID, err := a.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return session.Pair{}, errInvalidRefresh
	}
	db := a.db.WithContext(ctx)
	var user models.User
	err = db.Select("id", "refresh_token_hash").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return session.Pair{}, errInvalidRefresh
	}
	if err != nil {
		return session.Pair{}, apperr.Internal(err)
	}
	presented := session.HashToken(refreshToken)
	if user.RefreshTokenHash == nil ||
		subtle.ConstantTimeCompare([]byte(*user.RefreshTokenHash), []byte(presented)) != 1 {
		return session.Pair{}, errInvalidRefresh
	}

	pair, err := a.issuer.Pair(userID)
	if err != nil {
		return session.Pair{}, apperr.Internal(err)
	}
	res := db.Model(&models.User{}).
		Where("id = ? AND refresh_token_hash = ?", userID, presented).
		Update("refresh_token_hash", session.HashToken(pair.RefreshToken))
	if res.Error != nil {
		return session.Pair{}, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return session.Pair{}, errInvalidRefresh
	}
	return pair, nil
}

// revokeSession forgets the stored refresh token. Revoking twice is fine.
func (a *App) revokeSession(ctx context.Context, userID uint) error {
	err := a.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("refresh_token_hash", nil).Error
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// setPassword replaces a user's password and ends their session.
func (a *App) setPassword(ctx context.Context, userID uint, password string) error {
	hash, err := hashPassword(password, a.cfg.BcryptCost)
	if err != nil {
		return err
	}
	res := a.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"hashed_password": hash, "refresh_token_hash": nil})
	if res.Error != nil {
		return apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}
