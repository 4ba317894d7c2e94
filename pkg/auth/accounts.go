package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"chatzalo/pkg/logger"
	"chatzalo/pkg/models"
	"chatzalo/pkg/store"
	"chatzalo/pkg/timeutil"
	"chatzalo/pkg/utils"
)

const minPasswordLen = 6

var (
	ErrBadCredentials = errors.New("wrong email or password")
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidInput   = errors.New("invalid input")
)

type Registration struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
	Avatar   string `json:"avatar"`
	Phone    string `json:"phoneNumber"`
}

// Session is the login result.
type Session struct {
	Token     string         `json:"token"`
	ExpiresAt int64          `json:"expiresAt"`
	User      models.Profile `json:"user"`
}

// Accounts registers users and logs them in.
type Accounts struct {
	store  *store.Store
	tokens *Tokens
	cost   int
	now    timeutil.Clock
}

// NewAccounts builds the account service. cost is the bcrypt cost; 0 means
// bcrypt.DefaultCost.
func NewAccounts(st *store.Store, tokens *Tokens, cost int, clock timeutil.Clock) *Accounts {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Accounts{store: st, tokens: tokens, cost: cost, now: clock.OrNow()}
}

// Register creates a user with a bcrypt-hashed password.
func (a *Accounts) Register(ctx context.Context, in Registration) (models.Profile, error) {
	if err := ctx.Err(); err != nil {
		return models.Profile{}, err
	}
	email := utils.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || strings.ContainsAny(email, " <>") {
		return models.Profile{}, errors.Join(ErrInvalidInput, errors.New("email is not valid"))
	}
	if len(in.Password) < minPasswordLen {
		return models.Profile{}, errors.Join(ErrInvalidInput, errors.New("password is too short"))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), a.cost)
	if err != nil {
		return models.Profile{}, err
	}
	u := &models.User{
		ID:           utils.GenID(),
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		Avatar:       in.Avatar,
		Phone:        utils.NormalizePhone(in.Phone),
		PasswordHash: string(hash),
		Friends:      []string{},
		CreatedAt:    a.now(),
	}
	if err := a.store.CreateUser(u); err != nil {
		if errors.Is(err, store.ErrExists) {
			return models.Profile{}, ErrEmailTaken
		}
		return models.Profile{}, err
	}
	logger.Info("user_registered", "user", u.ID)
	return u.Profile(), nil
}

// Login checks the password and issues a session token.
func (a *Accounts) Login(ctx context.Context, email, password string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	u, err := a.store.GetUser(utils.NormalizeEmail(email))
	if store.IsNotFound(err) {
		return Session{}, ErrBadCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Session{}, ErrBadCredentials
	}
	token, exp, err := a.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp.Unix(), User: u.Profile()}, nil
}

// Authenticate verifies a token and checks that its user still exists.
func (a *Accounts) Authenticate(raw string) (Identity, error) {
	id, err := a.tokens.Verify(raw)
	if err != nil {
		return Identity{}, err
	}
	ok, err := a.store.UserExists(id.Email)
	if err != nil {
		return Identity{}, err
	}
	if !ok {
		return Identity{}, errors.Join(ErrTokenInvalid, errors.New("unknown user"))
	}
	return id, nil
}
