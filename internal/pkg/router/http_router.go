package router

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/FrederikMaler/LicenseBay/app/controllers"
	"github.com/FrederikMaler/LicenseBay/app/repository"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/constants"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/database"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/middleware"
	"github.com/FrederikMaler/LicenseBay/internal/pkg/session"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// repositories share the DB handle opened by the readiness gate
	repository.InitializeRepositories(database.GetDB())

	// A broken pricing config or unreadable signing key must stop the
	// server here, not fail a buyer after their card was charged.
	if err := controllers.InitializeCheckoutController(); err != nil {
		log.Fatalf("initializing checkout controller: %v", err)
	}

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Halt buyers while the database is down rather than mid-checkout.
	app.Use(middleware.DatabaseHealth)

	app.Get(constants.HomeRoute, controllers.HandleHome)
	app.Get(constants.ChargeRoute, controllers.HandleChargeRedirect)
	app.Post(constants.ChargeRoute, controllers.HandleCharge)
	app.Get(constants.CompletedRoute, controllers.HandleCompleted)
}
