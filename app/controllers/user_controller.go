package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/paygate/internal/pkg/idp"
	"github.com/ManuelReschke/paygate/internal/pkg/middleware"
)

type CustomerProvisioner interface {
	ProvisionCustomer(ctx context.Context, accessToken string) (string, bool, error)
}

// UserController serves the /user routes. Every route sits behind the bearer gate.
type UserController struct {
	directory   idp.Directory
	provisioner CustomerProvisioner
}

func NewUserController(directory idp.Directory, provisioner CustomerProvisioner) *UserController {
	return &UserController{directory: directory, provisioner: provisioner}
}

// HandleGetUser relays the identity provider's user record.
func (uc *UserController) HandleGetUser(c *fiber.Ctx) error {
	user, err := uc.directory.GetUser(c.UserContext(), middleware.AccessToken(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// HandleProvisionCustomer links a billing customer to the caller. Answers 201
// when a customer was created and 200 when one was already linked.
func (uc *UserController) HandleProvisionCustomer(c *fiber.Ctx) error {
	id, created, err := uc.provisioner.ProvisionCustomer(c.UserContext(), middleware.AccessToken(c))
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"customer_id": id,
		"created":     created,
	})
}
