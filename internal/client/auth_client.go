package client

import (
	"context"
	"net/http"

	"github.com/fjod/go_storefront/domain"
)

type AuthClient struct {
	base *baseClient
}

func NewAuthClient(baseURL string, opts ...Option) *AuthClient {
	return &AuthClient{base: newBaseClient("auth-service", baseURL, opts...)}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *AuthClient) Signup(ctx context.Context, name, email, password string) (*domain.User, error) {
	var user domain.User
	req := signupRequest{Name: name, Email: email, Password: password}
	if err := c.base.do(ctx, opSignup, http.MethodPost, "/api/signup", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var user domain.User
	req := loginRequest{Email: email, Password: password}
	if err := c.base.do(ctx, opLogin, http.MethodPost, "/api/login", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
