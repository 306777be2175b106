package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/Martin-Hayot/live-auction-server/internal/auth"
	"github.com/Martin-Hayot/live-auction-server/internal/database"
	"github.com/Martin-Hayot/live-auction-server/pkg/errors"
	"github.com/Martin-Hayot/live-auction-server/pkg/protocol"
	"github.com/Martin-Hayot/live-auction-server/pkg/types"
	"github.com/charmbracelet/log"
)

const (
	minPasswordLength = 6
	// bcrypt refuses longer inputs.
	maxPasswordLength = 72
)

var errBadCredentials = errors.New(errors.ErrInvalidCredentials, "Invalid username or password.")

type Users struct {
	store database.Service
	auth  *auth.Authenticator
}

func NewUsers(store database.Service, a *auth.Authenticator) *Users {
	return &Users{store: store, auth: a}
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.New(errors.ErrInvalidArgument, "Email is required.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New(errors.ErrInvalidArgument, "Email address is not valid.")
	}
	return strings.ToLower(email), nil
}

// Register creates a BUYER or SELLER account. ADMIN accounts cannot be self-registered.
func (u *Users) Register(ctx context.Context, p protocol.RegisterPayload) (types.User, error) {
	username := strings.TrimSpace(p.Username)
	if username == "" {
		return types.User{}, errors.New(errors.ErrInvalidArgument, "Username is required.")
	}
	if len(p.Password) < minPasswordLength {
		return types.User{}, errors.New(errors.ErrInvalidArgument, "Password must be at least 6 characters.")
	}
	if len(p.Password) > maxPasswordLength {
		return types.User{}, errors.New(errors.ErrInvalidArgument, "Password must be at most 72 bytes.")
	}
	email, err := normalizeEmail(p.Email)
	if err != nil {
		return types.User{}, err
	}
	role := types.Role(strings.ToUpper(string(p.Role)))
	if role == "" {
		role = types.RoleBuyer
	}
	if !role.Valid() {
		return types.User{}, errors.New(errors.ErrInvalidArgument, "Unknown role.")
	}
	if role == types.RoleAdmin {
		return types.User{}, errors.New(errors.ErrForbidden, "Admin accounts cannot be registered.")
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return types.User{}, errors.Internal(err)
	}

	user, err := u.store.CreateUser(ctx, types.User{Username: username, Email: email, Role: role}, hash)
	if errors.Is(err, errors.ErrDuplicate) {
		return types.User{}, errors.New(errors.ErrAlreadyExists, "Username or email already taken.")
	}
	if err != nil {
		return types.User{}, storeErr("create user", err, nil)
	}
	log.Info("User registered", "user", user.Username, "role", user.Role)
	return user, nil
}

// Login checks the credentials and issues a session token.
func (u *Users) Login(ctx context.Context, p protocol.LoginPayload) (protocol.LoginResult, error) {
	user, hash, err := u.store.GetUserCredentials(ctx, strings.TrimSpace(p.Username))
	if errors.Is(err, errors.ErrRecordNotFound) {
		return protocol.LoginResult{}, errBadCredentials
	}
	if err != nil {
		return protocol.LoginResult{}, storeErr("get credentials", err, nil)
	}
	if !auth.CheckPassword(hash, p.Password) {
		log.Debug("Rejected login", "user", user.Username)
		return protocol.LoginResult{}, errBadCredentials
	}

	token, err := u.auth.Issue(user)
	if err != nil {
		log.Error("Failed to issue token", "user", user.ID, "err", err)
		return protocol.LoginResult{}, errors.Internal(err)
	}
	return protocol.LoginResult{User: user, Token: token}, nil
}

func (u *Users) Profile(ctx context.Context, userID int64) (types.User, error) {
	user, err := u.store.GetUserByID(ctx, userID)
	if err != nil {
		return types.User{}, storeErr("get user", err, errUserNotFound)
	}
	return user, nil
}

// UpdateEmail changes the email of userID and returns the updated profile.
func (u *Users) UpdateEmail(ctx context.Context, userID int64, email string) (types.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return types.User{}, err
	}
	err = u.store.UpdateUserEmail(ctx, userID, email)
	if errors.Is(err, errors.ErrDuplicate) {
		return types.User{}, errors.New(errors.ErrAlreadyExists, "Email already in use.")
	}
	if err != nil {
		return types.User{}, storeErr("update email", err, errUserNotFound)
	}
	return u.Profile(ctx, userID)
}

func (u *Users) List(ctx context.Context) ([]types.User, error) {
	return list(ctx, "list users", u.store.ListUsers)
}
