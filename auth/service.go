package auth

import (
	"context"
	"regexp"
	"time"
	"unicode/utf8"

	"versus/domain"
)

var usernameFormat = regexp.MustCompile("^[a-z0-9_]{3,20}$")

const (
	minPasswordLength = 8
	maxPasswordLength = 64
)

type service struct {
	userRepo       UserRepo
	passwordHasher PasswordHasher
	tokenManager   TokenManager
	now            func() time.Time
}

func NewService(userRepo UserRepo, passwordHasher PasswordHasher, tokenManager TokenManager) *service {
	return &service{userRepo, passwordHasher, tokenManager, time.Now}
}

func (s *service) Signup(ctx context.Context, username, password string) (string, error) {
	if !usernameFormat.MatchString(username) {
		return "", ErrInvalidUsernameFormat
	}

	length := utf8.RuneCountInString(password)
	if length < minPasswordLength {
		return "", ErrWeakPassword
	}
	if length > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := s.passwordHasher.Hash(password)
	if err != nil {
		return "", err
	}

	id, err := s.userRepo.CreateUser(ctx, username, hash)
	if err != nil {
		return "", err
	}

	return s.tokenManager.Generate(domain.User{Id: id, Username: username}, s.now())
}

func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	match, err := s.passwordHasher.Compare(user.PasswordHash, password)
	if err != nil {
		return "", err
	}
	if !match {
		return "", ErrIncorrectPassword
	}

	return s.tokenManager.Generate(user, s.now())
}

func (s *service) VerifyToken(token string) (domain.User, error) {
	return s.tokenManager.Verify(token)
}

func (s *service) GenerateToken(user domain.User) (string, error) {
	return s.tokenManager.Generate(user, s.now())
}
