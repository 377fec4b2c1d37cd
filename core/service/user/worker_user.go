// Package user implements registration, login and per-user configuration.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/core/service/auth"
	"calsync_server/core/service/common"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
)

// Service owns the user profile and attendee mapping documents.
type Service struct {
	keys     common.Keys
	store    out.DocumentStore
	oauth    in.OAuthService
	sessions *auth.SessionSigner
	policy   domain.MergePolicy
	params   auth.Argon2idParams
}

var _ in.UserService = (*Service)(nil)

func NewService(keys common.Keys, store out.DocumentStore, oauth in.OAuthService, sessions *auth.SessionSigner, policy domain.MergePolicy) *Service {
	if !policy.Valid() {
		policy = domain.MergeFirstSeen
	}
	return &Service{
		keys:     keys,
		store:    store,
		oauth:    oauth,
		sessions: sessions,
		policy:   policy,
		params:   auth.DefaultArgon2idParams,
	}
}

// SetPasswordParams overrides the argon2id cost.
func (s *Service) SetPasswordParams(p auth.Argon2idParams) { s.params = p }

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.MissingField("name")
	}
	if strings.Contains(name, "/") || strings.Contains(name, common.UserPlaceholder) {
		return apperr.InvalidInput("name", "must not contain '/' or the user placeholder")
	}
	return nil
}

func (s *Service) AddUser(ctx context.Context, name, password string) (*domain.User, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperr.MissingField("password")
	}

	hash, err := auth.HashPassword(password, s.params)
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	u := domain.User{Name: name, PasswordHash: hash, Rooms: []domain.RoomRef{}, Filters: []string{}}
	if _, err := common.PutJSON(ctx, s.store, s.keys.Bucket, s.keys.UserInfoKey(name), u, out.WriteCondition{IfAbsent: true}); err != nil {
		if errors.Is(err, out.ErrVersionConflict) {
			return nil, apperr.AlreadyExists("user")
		}
		return nil, apperr.StorageError("create user", err)
	}

	logger.Info("[UserService.AddUser] Created user %s", name)
	return u.Public(), nil
}

func (s *Service) load(ctx context.Context, name string) (*domain.User, common.Found, error) {
	var u domain.User
	found, err := common.ReadJSON(ctx, s.store, s.keys.Bucket, s.keys.UserInfoKey(name), &u)
	if err != nil {
		return nil, found, apperr.StorageError("load user", err)
	}
	if !found.Exists {
		return nil, found, apperr.NotFound("user")
	}
	if u.Name == "" {
		u.Name = name
	}
	return &u, found, nil
}

// Login verifies the password and returns a session token.
func (s *Service) Login(ctx context.Context, name, password string) (string, error) {
	if name == "" || password == "" {
		return "", apperr.MissingField("name and password")
	}
	if err := validateName(name); err != nil {
		return "", apperr.Unauthorized("invalid credentials")
	}

	u, _, err := s.load(ctx, name)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return "", apperr.Unauthorized("invalid credentials")
		}
		return "", err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		logger.Debug("[UserService.Login] Rejected login for %s: %v", name, err)
		return "", apperr.Unauthorized("invalid credentials")
	}

	token, err := s.sessions.Sign(name)
	if err != nil {
		return "", apperr.InternalWithError(err)
	}
	return token, nil
}

func (s *Service) attendees(ctx context.Context, name string) ([]domain.AttendeeMapping, error) {
	var list []domain.AttendeeMapping
	if _, err := common.ReadJSON(ctx, s.store, s.keys.Bucket, s.keys.AttendeesKey(name), &list); err != nil {
		return nil, apperr.StorageError("load attendees", err)
	}
	if list == nil {
		list = []domain.AttendeeMapping{}
	}
	return list, nil
}

func (s *Service) providerStatus(ctx context.Context, provider domain.Provider, name string) domain.ProviderStatus {
	var st domain.ProviderStatus
	ok, err := s.oauth.Authorized(ctx, provider, name)
	if err != nil {
		logger.WithError(err).Warn("[UserService.GetConfig] Failed to check %s authorization for %s", provider, name)
	}
	st.Authorized = ok
	if url, err := s.oauth.LoginURL(ctx, provider, name); err == nil {
		st.LoginURL = url
	}
	return st
}

func (s *Service) GetConfig(ctx context.Context, name string) (*domain.UserConfig, error) {
	u, _, err := s.load(ctx, name)
	if err != nil {
		return nil, err
	}
	list, err := s.attendees(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.UserConfig{
		Info:      u.Public(),
		Attendees: list,
		Google:    s.providerStatus(ctx, domain.ProviderGoogle, name),
		Outlook:   s.providerStatus(ctx, domain.ProviderOutlook, name),
	}, nil
}

// SaveConfig replaces the room list and subject filters, then merges any
// attendees in the request.
func (s *Service) SaveConfig(ctx context.Context, name string, req *in.SaveConfigRequest) (*domain.User, error) {
	if req == nil {
		return nil, apperr.BadRequest("empty request")
	}
	for i, r := range req.Rooms {
		if strings.TrimSpace(r.ID) == "" {
			return nil, apperr.InvalidInput(fmt.Sprintf("rooms[%d].id", i), "required")
		}
	}

	var saved domain.User
	_, err := common.UpdateJSON(ctx, s.store, s.keys.Bucket, s.keys.UserInfoKey(name), 0,
		func(cur domain.User, exists bool) (domain.User, error) {
			if !exists {
				return cur, apperr.NotFound("user")
			}
			if cur.Name == "" {
				cur.Name = name
			}
			cur.Rooms = append([]domain.RoomRef{}, req.Rooms...)
			cur.Filters = append([]string{}, req.Filters...)
			saved = cur
			return cur, nil
		})
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, apperr.StorageError("save user config", err)
	}

	if len(req.Attendees) > 0 {
		if _, err := s.AddAttendees(ctx, name, req.Attendees); err != nil {
			return nil, err
		}
	}
	return saved.Public(), nil
}

// AddAttendees merges entries keyed by outlook address using the configured
// policy and returns the stored list.
func (s *Service) AddAttendees(ctx context.Context, name string, entries []domain.AttendeeMapping) ([]domain.AttendeeMapping, error) {
	for i, e := range entries {
		if strings.TrimSpace(e.Outlook) == "" {
			return nil, apperr.InvalidInput(fmt.Sprintf("attendees[%d].outlook", i), "required")
		}
		if len(e.Google) == 0 {
			return nil, apperr.InvalidInput(fmt.Sprintf("attendees[%d].google", i), "required")
		}
	}
	if _, _, err := s.load(ctx, name); err != nil {
		return nil, err
	}

	list, err := common.UpdateJSON(ctx, s.store, s.keys.Bucket, s.keys.AttendeesKey(name), 0,
		func(cur []domain.AttendeeMapping, _ bool) ([]domain.AttendeeMapping, error) {
			return MergeAttendees(cur, entries, s.policy)
		})
	if err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, apperr.StorageError("save attendees", err)
	}
	return list, nil
}

// DeleteAttendees removes entries by outlook address. Unknown addresses are
// ignored.
func (s *Service) DeleteAttendees(ctx context.Context, name string, outlookAddresses []string) ([]domain.AttendeeMapping, error) {
	drop := make(map[string]struct{}, len(outlookAddresses))
	for _, a := range outlookAddresses {
		drop[attendeeKey(a)] = struct{}{}
	}

	list, err := common.UpdateJSON(ctx, s.store, s.keys.Bucket, s.keys.AttendeesKey(name), 0,
		func(cur []domain.AttendeeMapping, _ bool) ([]domain.AttendeeMapping, error) {
			kept := make([]domain.AttendeeMapping, 0, len(cur))
			for _, m := range cur {
				if _, ok := drop[attendeeKey(m.Outlook)]; !ok {
					kept = append(kept, m)
				}
			}
			return kept, nil
		})
	if err != nil {
		return nil, apperr.StorageError("delete attendees", err)
	}
	return list, nil
}

func attendeeKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// MergeAttendees merges incoming into existing keyed by outlook address.
// first_seen keeps the earlier entry, last_write replaces it in place and
// reject fails on any collision. Duplicates inside incoming follow the same
// rule.
func MergeAttendees(existing, incoming []domain.AttendeeMapping, policy domain.MergePolicy) ([]domain.AttendeeMapping, error) {
	merged := make([]domain.AttendeeMapping, 0, len(existing)+len(incoming))
	pos := make(map[string]int, len(existing)+len(incoming))

	add := func(m domain.AttendeeMapping, fromIncoming bool) error {
		k := attendeeKey(m.Outlook)
		i, dup := pos[k]
		if !dup {
			pos[k] = len(merged)
			merged = append(merged, m)
			return nil
		}
		if !fromIncoming {
			return nil
		}
		switch policy {
		case domain.MergeLastWrite:
			merged[i] = m
		case domain.MergeReject:
			return apperr.AlreadyExists("attendee " + m.Outlook)
		}
		return nil
	}

	for _, m := range existing {
		_ = add(m, false)
	}
	for _, m := range incoming {
		if err := add(m, true); err != nil {
			return nil, err
		}
	}
	return merged, nil
}
