package http

import (
	"github.com/gofiber/fiber/v2"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
)

type UserHandler struct {
	users in.UserService
}

func NewUserHandler(users in.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Guards holds the middleware a handler group is mounted behind.
type Guards struct {
	Session     fiber.Handler
	Redirect    fiber.Handler
	Admin       fiber.Handler
	AdminCreate fiber.Handler
	Login       fiber.Handler
}

func (h *UserHandler) Register(app fiber.Router, g Guards) {
	users := app.Group("/users")
	users.Post("/", g.AdminCreate, h.AddUser)
	users.Post("/login", g.Login, h.Login)

	me := users.Group("/me", g.Session)
	me.Get("/config", h.GetConfig)
	me.Put("/config", h.SaveConfig)
	me.Post("/attendees", h.AddAttendees)
	me.Delete("/attendees", h.DeleteAttendees)
}

type credentialsRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *UserHandler) AddUser(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.AddUser(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return err
	}
	logger.Info("[UserHandler.AddUser] created user %s", user.Name)
	return successWithStatus(c, fiber.StatusCreated, user)
}

func (h *UserHandler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	token, err := h.users.Login(c.UserContext(), req.Name, req.Password)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"token": token})
}

func (h *UserHandler) GetConfig(c *fiber.Ctx) error {
	user, err := MustGetUser(c)
	if err != nil {
		return err
	}
	cfg, err := h.users.GetConfig(c.UserContext(), user)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cfg)
}

func (h *UserHandler) SaveConfig(c *fiber.Ctx) error {
	user, err := MustGetUser(c)
	if err != nil {
		return err
	}
	var req in.SaveConfigRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	saved, err := h.users.SaveConfig(c.UserContext(), user, &req)
	if err != nil {
		return err
	}
	return SuccessResponse(c, saved)
}

type attendeesRequest struct {
	Attendees []domain.AttendeeMapping `json:"attendees"`
}

func (h *UserHandler) AddAttendees(c *fiber.Ctx) error {
	user, err := MustGetUser(c)
	if err != nil {
		return err
	}
	var req attendeesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Attendees) == 0 {
		return apperr.MissingField("attendees")
	}
	list, err := h.users.AddAttendees(c.UserContext(), user, req.Attendees)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"attendees": list})
}

type deleteAttendeesRequest struct {
	Outlook []string `json:"outlook"`
}

func (h *UserHandler) DeleteAttendees(c *fiber.Ctx) error {
	user, err := MustGetUser(c)
	if err != nil {
		return err
	}
	var req deleteAttendeesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if len(req.Outlook) == 0 {
		return apperr.MissingField("outlook")
	}
	list, err := h.users.DeleteAttendees(c.UserContext(), user, req.Outlook)
	if err != nil {
		return err
	}
	return SuccessResponse(c, fiber.Map{"attendees": list})
}
