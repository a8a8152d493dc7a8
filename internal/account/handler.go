package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/cronos-sched/cronos/internal/status"
)

// Handler exposes account provisioning endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name      string `json:"name"`
	OwnerKey  string `json:"owner_key"`
	ActiveKey string `json:"active_key"`
}

type accountResponse struct {
	Name      string `json:"name"`
	OwnerKey  string `json:"owner_key"`
	ActiveKey string `json:"active_key"`
	CreatedAt int64  `json:"created_at"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{
		Name:      a.Name,
		OwnerKey:  EncodeKey(a.OwnerKey),
		ActiveKey: EncodeKey(a.ActiveKey),
		CreatedAt: a.CreatedAt.Unix(),
	}
}

// Register handles account creation.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Register(c.UserContext(), Registration{Name: req.Name, OwnerKey: req.OwnerKey, ActiveKey: req.ActiveKey})
	if errors.Is(err, ErrExists) {
		return fiber.NewError(http.StatusConflict, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(acct))
}

// Get returns the public keys of an account.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Find(c.UserContext(), c.Params("name"))
	if errors.Is(err, status.ErrNotFound) {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(acct))
}
