package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows the configured comma separated origins. Credentials are never
// allowed, so a wildcard origin is accepted as is.
func CORS(origins string) fiber.Handler {
	origins = strings.Join(strings.Fields(strings.ReplaceAll(origins, ",", " ")), ",")
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization," + RequestIDHeader,
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length," + RequestIDHeader,
		MaxAge:           3600,
	})
}
