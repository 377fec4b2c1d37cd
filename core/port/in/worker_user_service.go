package in

import (
	"context"

	"calsync_server/core/domain"
)

type UserService interface {
	AddUser(ctx context.Context, name, password string) (*domain.User, error)
	Login(ctx context.Context, name, password string) (string, error)
	GetConfig(ctx context.Context, name string) (*domain.UserConfig, error)
	SaveConfig(ctx context.Context, name string, req *SaveConfigRequest) (*domain.User, error)
	AddAttendees(ctx context.Context, name string, entries []domain.AttendeeMapping) ([]domain.AttendeeMapping, error)
	DeleteAttendees(ctx context.Context, name string, outlookAddresses []string) ([]domain.AttendeeMapping, error)
}

type SaveConfigRequest struct {
	Rooms     []domain.RoomRef         `json:"rooms"`
	Filters   []string                 `json:"filters"`
	Attendees []domain.AttendeeMapping `json:"attendees,omitempty"`
}
