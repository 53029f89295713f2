package routes

import (
	"net/http"

	"signature-elite-server/media"
	"signature-elite-server/middleware"
	"signature-elite-server/offers"
	"signature-elite-server/registry"
	"signature-elite-server/reviews"
	"signature-elite-server/trust"
	"signature-elite-server/users"
	"signature-elite-server/utils"
	"signature-elite-server/wishlist"

	"github.com/kataras/iris/v12"
)

// Handlers serves the marketplace operations over HTTP.
type Handlers struct {
	Users    *users.Directory
	Registry *registry.Registry
	Trust    *trust.Enforcer
	Offers   *offers.Ledger
	Wishlist *wishlist.Index
	Reviews  *reviews.Book
	Media    *media.Service

	StripeWebhookSecret string
}

func Register(app *iris.Application, authn *middleware.Authenticator, h *Handlers) {
	app.Post("/webhooks/stripe", h.StripeWebhook)

	app.Use(authn.Identify)

	app.Get("/properties", h.ListProperties)
	app.Get("/properties/advertised", h.ListAdvertisedProperties)
	app.Get("/properties/{id:uint}", h.GetProperty)
	app.Get("/properties/{id:uint}/reviews", h.ListPropertyReviews)

	private := middleware.Require

	app.Post("/users", private, h.RegisterUser)
	app.Get("/users", private, h.ListUsers)
	app.Get("/users/{email}/role", private, h.GetUserRole)
	app.Patch("/users/{id:uint}/role", private, h.SetUserRole)
	app.Patch("/users/{id:uint}/fraud", private, h.SetUserFraud)
	app.Post("/admin/reconcile-fraud", private, h.ReconcileFraud)

	app.Post("/properties", private, h.CreateProperty)
	app.Get("/properties/mine", private, h.ListMyProperties)
	app.Get("/properties/all", private, h.ListAllProperties)
	app.Put("/properties/{id:uint}", private, h.UpdateProperty)
	app.Delete("/properties/{id:uint}", private, h.DeleteProperty)
	app.Patch("/properties/{id:uint}/verification", private, h.SetVerification)
	app.Patch("/properties/{id:uint}/advertise", private, h.AdvertiseProperty)
	app.Post("/properties/{id:uint}/image", private, h.UploadPropertyImage)

	app.Post("/offers", private, h.SubmitOffer)
	app.Get("/offers/{id:uint}", private, h.GetOffer)
	app.Patch("/offers/{id:uint}/decision", private, h.DecideOffer)
	app.Post("/offers/{id:uint}/payment-intent", private, h.RequestPayment)
	app.Post("/offers/{id:uint}/confirm", private, h.ConfirmPayment)
	app.Get("/offers/buyer/{email}", private, h.ListBuyerOffers)
	app.Get("/offers/agent/{email}", private, h.ListAgentOffers)

	app.Get("/wishlist/{email}", private, h.ListWishlist)
	app.Post("/wishlist/{email}", private, h.AddToWishlist)
	app.Delete("/wishlist/{email}/{propertyId:uint}", private, h.RemoveFromWishlist)

	app.Post("/reviews", private, h.AddReview)
	app.Get("/reviews", private, h.ListAllReviews)
	app.Get("/reviews/user/{email}", private, h.ListUserReviews)
	app.Delete("/reviews/{id:uint}", private, h.DeleteReview)
}

func readJSON(ctx iris.Context, v interface{}) bool {
	if err := ctx.ReadJSON(v); err != nil {
		utils.CreateError(ctx, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

func pathID(ctx iris.Context, name string) (uint, bool) {
	id := ctx.Params().GetUintDefault(name, 0)
	if id == 0 {
		utils.CreateError(ctx, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}
