package routes

import (
	"net/http"

	"signature-elite-server/middleware"
	"signature-elite-server/models"
	"signature-elite-server/utils"

	"github.com/kataras/iris/v12"
)

// RegisterUser records the caller on first sign-in and returns the stored user.
func (h *Handlers) RegisterUser(ctx iris.Context) {
	var body struct {
		Name  string `json:"name"`
		Image string `json:"image"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	user, created, err := h.Users.RegisterIfAbsent(ctx.Request().Context(), middleware.Claim(ctx), body.Name, body.Image)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	if created {
		ctx.StatusCode(http.StatusCreated)
	}
	ctx.JSON(user)
}

func (h *Handlers) GetUserRole(ctx iris.Context) {
	role, err := h.Users.Role(ctx.Request().Context(), ctx.Params().Get("email"))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"role": role})
}

func (h *Handlers) ListUsers(ctx iris.Context) {
	list, err := h.Users.List(ctx.Request().Context(), middleware.Claim(ctx))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(list)
}

func (h *Handlers) SetUserRole(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		Role models.Role `json:"role"`
	}
	if !readJSON(ctx, &body) {
		return
	}

	user, err := h.Users.SetRole(ctx.Request().Context(), middleware.Claim(ctx), id, body.Role)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(user)
}

// SetUserFraud flags or clears a user. Flagging removes every listing they own.
func (h *Handlers) SetUserFraud(ctx iris.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}

	var body struct {
		IsFraud *bool `json:"isFraud"`
	}
	if !readJSON(ctx, &body) {
		return
	}
	if body.IsFraud == nil {
		utils.CreateError(ctx, http.StatusBadRequest, "isFraud is required")
		return
	}

	result, err := h.Trust.SetFraudFlag(ctx.Request().Context(), middleware.Claim(ctx), id, *body.IsFraud)
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(result)
}

func (h *Handlers) ReconcileFraud(ctx iris.Context) {
	removed, err := h.Trust.Reconcile(ctx.Request().Context(), middleware.Claim(ctx))
	if err != nil {
		utils.WriteError(ctx, err)
		return
	}

	ctx.JSON(iris.Map{"listingsRemoved": removed})
}
